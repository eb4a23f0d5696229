// Package bridgestore defines the bridge's configuration persistence
// boundary: the enabled MQTT/ZeroMQ endpoint sets, the topic mapping set,
// and the operator account table the (out-of-scope) REST control plane
// authenticates against.
//
// The Bridge Supervisor only ever calls the ListEnabled methods, building a
// supervisor.Snapshot from them on Start and on ApplyConfig. The CRUD
// methods exist because the Facade's ApplyConfig command needs a concrete
// store shape to diff future snapshots against, even though nothing in this
// repository currently calls Create/Update/Delete directly.
package bridgestore

import (
	"context"
	"errors"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
)

// ErrNotFound is returned by Get/Update/Delete when no row matches the
// given id.
var ErrNotFound = errors.New("bridgestore: not found")

// ErrConflict is returned by Create/Update when a unique constraint (e.g.
// endpoint name, mapping id, username) would be violated.
var ErrConflict = errors.New("bridgestore: conflict")

// User is one operator account record.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MQTTEndpoints persists MQTTEndpoint records.
type MQTTEndpoints interface {
	List(ctx context.Context) ([]model.MQTTEndpoint, error)
	ListEnabled(ctx context.Context) ([]model.MQTTEndpoint, error)
	Get(ctx context.Context, id int64) (model.MQTTEndpoint, error)
	Create(ctx context.Context, ep model.MQTTEndpoint) (model.MQTTEndpoint, error)
	Update(ctx context.Context, ep model.MQTTEndpoint) error
	Delete(ctx context.Context, id int64) error
}

// ZMQEndpoints persists ZMQEndpoint records.
type ZMQEndpoints interface {
	List(ctx context.Context) ([]model.ZMQEndpoint, error)
	ListEnabled(ctx context.Context) ([]model.ZMQEndpoint, error)
	Get(ctx context.Context, id int64) (model.ZMQEndpoint, error)
	Create(ctx context.Context, ep model.ZMQEndpoint) (model.ZMQEndpoint, error)
	Update(ctx context.Context, ep model.ZMQEndpoint) error
	Delete(ctx context.Context, id int64) error
}

// Mappings persists Mapping records.
type Mappings interface {
	List(ctx context.Context) ([]model.Mapping, error)
	ListEnabled(ctx context.Context) ([]model.Mapping, error)
	Get(ctx context.Context, id int64) (model.Mapping, error)
	Create(ctx context.Context, m model.Mapping) (model.Mapping, error)
	Update(ctx context.Context, m model.Mapping) error
	Delete(ctx context.Context, id int64) error
}

// Users persists operator account records consumed by the out-of-scope
// REST/JWT control plane. The Supervisor never reads this table; it is
// part of ConfigStore only because a single store implementation owns
// the whole schema.
type Users interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, id int64) error
}

// ConfigStore is the bridge's full configuration persistence boundary.
type ConfigStore interface {
	MQTTEndpoints() MQTTEndpoints
	ZMQEndpoints() ZMQEndpoints
	Mappings() Mappings
	Users() Users
}

// Package model defines the bridge's shared domain types: endpoints,
// mappings, routing actions, worker state, and stats snapshots.
//
// These types are immutable once constructed and are passed by value or
// by pointer-to-immutable-struct between the supervisor, router, and
// workers. Nothing in this package performs I/O.
package model

// EndpointKind distinguishes MQTT endpoints from ZeroMQ endpoints.
type EndpointKind int

const (
	KindMQTT EndpointKind = iota
	KindZMQ
)

func (k EndpointKind) String() string {
	switch k {
	case KindMQTT:
		return "mqtt"
	case KindZMQ:
		return "zmq"
	default:
		return "unknown"
	}
}

// EndpointRef identifies an endpoint by kind and id. It is the key used
// throughout the mapping index and worker table.
type EndpointRef struct {
	Kind EndpointKind
	ID   int64
}

// MQTTEndpoint is one configured MQTT broker connection.
type MQTTEndpoint struct {
	ID           int64
	Name         string
	Enabled      bool
	Host         string
	Port         int
	ClientID     string
	Username     string
	Password     string
	TLS          bool
	KeepAliveSec int
	CleanSession bool
}

// Ref returns this endpoint's identity as an EndpointRef.
func (e MQTTEndpoint) Ref() EndpointRef {
	return EndpointRef{Kind: KindMQTT, ID: e.ID}
}

// ZMQRole is a ZeroMQ socket role.
type ZMQRole int

const (
	RolePub ZMQRole = iota
	RoleSub
	RoleXPub
	RoleXSub
)

func (r ZMQRole) String() string {
	switch r {
	case RolePub:
		return "pub"
	case RoleSub:
		return "sub"
	case RoleXPub:
		return "xpub"
	case RoleXSub:
		return "xsub"
	default:
		return "unknown"
	}
}

// IsPublisher reports whether this role primarily publishes (pub/xpub).
func (r ZMQRole) IsPublisher() bool {
	return r == RolePub || r == RoleXPub
}

// ZMQEndpoint is one configured ZeroMQ socket.
type ZMQEndpoint struct {
	ID             int64
	Name           string
	Enabled        bool
	Role           ZMQRole
	BindAddr       string
	ConnectAddrs   []string
	HighWaterMark  int
	ReconnectIntMs int
}

// Ref returns this endpoint's identity as an EndpointRef.
func (e ZMQEndpoint) Ref() EndpointRef {
	return EndpointRef{Kind: KindZMQ, ID: e.ID}
}

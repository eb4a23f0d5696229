package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridgestore"
)

type zmqEndpointStore struct {
	db *sql.DB
}

const zmqEndpointColumns = `id, name, enabled, role, bind_addr, connect_addrs,
	high_water_mark, reconnect_int_ms`

func (s *zmqEndpointStore) List(ctx context.Context) ([]model.ZMQEndpoint, error) {
	return s.query(ctx, "SELECT "+zmqEndpointColumns+" FROM zmq_endpoints ORDER BY id")
}

func (s *zmqEndpointStore) ListEnabled(ctx context.Context) ([]model.ZMQEndpoint, error) {
	return s.query(ctx, "SELECT "+zmqEndpointColumns+" FROM zmq_endpoints WHERE enabled = 1 ORDER BY id")
}

func (s *zmqEndpointStore) query(ctx context.Context, query string, args ...any) ([]model.ZMQEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying zmq endpoints: %w", err)
	}
	defer rows.Close()

	var out []model.ZMQEndpoint
	for rows.Next() {
		ep, err := scanZMQEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning zmq endpoint: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zmq endpoints: %w", err)
	}
	return out, nil
}

func (s *zmqEndpointStore) Get(ctx context.Context, id int64) (model.ZMQEndpoint, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+zmqEndpointColumns+" FROM zmq_endpoints WHERE id = ?", id)
	ep, err := scanZMQEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ZMQEndpoint{}, bridgestore.ErrNotFound
		}
		return model.ZMQEndpoint{}, fmt.Errorf("querying zmq endpoint %d: %w", id, err)
	}
	return ep, nil
}

func (s *zmqEndpointStore) Create(ctx context.Context, ep model.ZMQEndpoint) (model.ZMQEndpoint, error) {
	connectAddrs, err := json.Marshal(ep.ConnectAddrs)
	if err != nil {
		return model.ZMQEndpoint{}, fmt.Errorf("marshalling connect_addrs: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, execErr := s.db.ExecContext(ctx, `
		INSERT INTO zmq_endpoints (name, enabled, role, bind_addr, connect_addrs,
			high_water_mark, reconnect_int_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.Name, boolToInt(ep.Enabled), ep.Role.String(), nullIfEmpty(ep.BindAddr), string(connectAddrs),
		ep.HighWaterMark, ep.ReconnectIntMs, now, now,
	)
	if execErr != nil {
		return model.ZMQEndpoint{}, wrapExecErr(ctx, "creating zmq endpoint", execErr)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ZMQEndpoint{}, fmt.Errorf("reading new zmq endpoint id: %w", err)
	}
	ep.ID = id
	return ep, nil
}

func (s *zmqEndpointStore) Update(ctx context.Context, ep model.ZMQEndpoint) error {
	connectAddrs, err := json.Marshal(ep.ConnectAddrs)
	if err != nil {
		return fmt.Errorf("marshalling connect_addrs: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, execErr := s.db.ExecContext(ctx, `
		UPDATE zmq_endpoints SET
			name = ?, enabled = ?, role = ?, bind_addr = ?, connect_addrs = ?,
			high_water_mark = ?, reconnect_int_ms = ?, updated_at = ?
		WHERE id = ?`,
		ep.Name, boolToInt(ep.Enabled), ep.Role.String(), nullIfEmpty(ep.BindAddr), string(connectAddrs),
		ep.HighWaterMark, ep.ReconnectIntMs, now, ep.ID,
	)
	if execErr != nil {
		return wrapExecErr(ctx, "updating zmq endpoint", execErr)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *zmqEndpointStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM zmq_endpoints WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting zmq endpoint %d: %w", id, err)
	}
	return rowsAffectedOrNotFound(res)
}

func scanZMQEndpoint(scanner rowScanner) (model.ZMQEndpoint, error) {
	var ep model.ZMQEndpoint
	var enabled int
	var role string
	var bindAddr sql.NullString
	var connectAddrsJSON string

	err := scanner.Scan(&ep.ID, &ep.Name, &enabled, &role, &bindAddr, &connectAddrsJSON,
		&ep.HighWaterMark, &ep.ReconnectIntMs)
	if err != nil {
		return model.ZMQEndpoint{}, err
	}

	ep.Enabled = enabled != 0
	ep.BindAddr = bindAddr.String
	ep.Role, err = parseZMQRole(role)
	if err != nil {
		return model.ZMQEndpoint{}, err
	}
	if err := json.Unmarshal([]byte(connectAddrsJSON), &ep.ConnectAddrs); err != nil {
		return model.ZMQEndpoint{}, fmt.Errorf("unmarshalling connect_addrs: %w", err)
	}
	return ep, nil
}

func parseZMQRole(s string) (model.ZMQRole, error) {
	switch s {
	case "pub":
		return model.RolePub, nil
	case "sub":
		return model.RoleSub, nil
	case "xpub":
		return model.RoleXPub, nil
	case "xsub":
		return model.RoleXSub, nil
	default:
		return 0, fmt.Errorf("unknown zmq role %q", s)
	}
}

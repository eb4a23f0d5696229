package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridgestore"
)

type mqttEndpointStore struct {
	db *sql.DB
}

const mqttEndpointColumns = `id, name, enabled, host, port, client_id, username, password,
	tls, keep_alive_sec, clean_session`

func (s *mqttEndpointStore) List(ctx context.Context) ([]model.MQTTEndpoint, error) {
	return s.query(ctx, "SELECT "+mqttEndpointColumns+" FROM mqtt_endpoints ORDER BY id")
}

func (s *mqttEndpointStore) ListEnabled(ctx context.Context) ([]model.MQTTEndpoint, error) {
	return s.query(ctx, "SELECT "+mqttEndpointColumns+" FROM mqtt_endpoints WHERE enabled = 1 ORDER BY id")
}

func (s *mqttEndpointStore) query(ctx context.Context, query string, args ...any) ([]model.MQTTEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mqtt endpoints: %w", err)
	}
	defer rows.Close()

	var out []model.MQTTEndpoint
	for rows.Next() {
		ep, err := scanMQTTEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mqtt endpoint: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mqtt endpoints: %w", err)
	}
	return out, nil
}

func (s *mqttEndpointStore) Get(ctx context.Context, id int64) (model.MQTTEndpoint, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+mqttEndpointColumns+" FROM mqtt_endpoints WHERE id = ?", id)
	ep, err := scanMQTTEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MQTTEndpoint{}, bridgestore.ErrNotFound
		}
		return model.MQTTEndpoint{}, fmt.Errorf("querying mqtt endpoint %d: %w", id, err)
	}
	return ep, nil
}

func (s *mqttEndpointStore) Create(ctx context.Context, ep model.MQTTEndpoint) (model.MQTTEndpoint, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mqtt_endpoints (name, enabled, host, port, client_id, username, password,
			tls, keep_alive_sec, clean_session, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.Name, boolToInt(ep.Enabled), ep.Host, ep.Port, ep.ClientID,
		nullIfEmpty(ep.Username), nullIfEmpty(ep.Password), boolToInt(ep.TLS),
		ep.KeepAliveSec, boolToInt(ep.CleanSession), now, now,
	)
	if err != nil {
		return model.MQTTEndpoint{}, wrapExecErr(ctx, "creating mqtt endpoint", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.MQTTEndpoint{}, fmt.Errorf("reading new mqtt endpoint id: %w", err)
	}
	ep.ID = id
	return ep, nil
}

func (s *mqttEndpointStore) Update(ctx context.Context, ep model.MQTTEndpoint) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE mqtt_endpoints SET
			name = ?, enabled = ?, host = ?, port = ?, client_id = ?, username = ?,
			password = ?, tls = ?, keep_alive_sec = ?, clean_session = ?, updated_at = ?
		WHERE id = ?`,
		ep.Name, boolToInt(ep.Enabled), ep.Host, ep.Port, ep.ClientID,
		nullIfEmpty(ep.Username), nullIfEmpty(ep.Password), boolToInt(ep.TLS),
		ep.KeepAliveSec, boolToInt(ep.CleanSession), now, ep.ID,
	)
	if err != nil {
		return wrapExecErr(ctx, "updating mqtt endpoint", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *mqttEndpointStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mqtt_endpoints WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting mqtt endpoint %d: %w", id, err)
	}
	return rowsAffectedOrNotFound(res)
}

func scanMQTTEndpoint(scanner rowScanner) (model.MQTTEndpoint, error) {
	var ep model.MQTTEndpoint
	var enabled, tls, cleanSession int
	var username, password sql.NullString

	err := scanner.Scan(&ep.ID, &ep.Name, &enabled, &ep.Host, &ep.Port, &ep.ClientID,
		&username, &password, &tls, &ep.KeepAliveSec, &cleanSession)
	if err != nil {
		return model.MQTTEndpoint{}, err
	}

	ep.Enabled = enabled != 0
	ep.TLS = tls != 0
	ep.CleanSession = cleanSession != 0
	ep.Username = username.String
	ep.Password = password.String
	return ep, nil
}

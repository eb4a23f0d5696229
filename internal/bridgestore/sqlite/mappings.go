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

type mappingStore struct {
	db *sql.DB
}

const mappingColumns = `id, source_kind, source_id, target_kind, target_id,
	source_topic, target_topic, direction, enabled, description`

func (s *mappingStore) List(ctx context.Context) ([]model.Mapping, error) {
	return s.query(ctx, "SELECT "+mappingColumns+" FROM mappings ORDER BY id")
}

func (s *mappingStore) ListEnabled(ctx context.Context) ([]model.Mapping, error) {
	return s.query(ctx, "SELECT "+mappingColumns+" FROM mappings WHERE enabled = 1 ORDER BY id")
}

func (s *mappingStore) query(ctx context.Context, query string, args ...any) ([]model.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var out []model.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mappings: %w", err)
	}
	return out, nil
}

func (s *mappingStore) Get(ctx context.Context, id int64) (model.Mapping, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+mappingColumns+" FROM mappings WHERE id = ?", id)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Mapping{}, bridgestore.ErrNotFound
		}
		return model.Mapping{}, fmt.Errorf("querying mapping %d: %w", id, err)
	}
	return m, nil
}

func (s *mappingStore) Create(ctx context.Context, m model.Mapping) (model.Mapping, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (source_kind, source_id, target_kind, target_id,
			source_topic, target_topic, direction, enabled, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Source.Kind.String(), m.Source.ID, m.Target.Kind.String(), m.Target.ID,
		m.SourceTopic, m.TargetTopic, m.Direction.String(), boolToInt(m.Enabled),
		nullIfEmpty(m.Description), now, now,
	)
	if err != nil {
		return model.Mapping{}, wrapExecErr(ctx, "creating mapping", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Mapping{}, fmt.Errorf("reading new mapping id: %w", err)
	}
	m.ID = id
	return m, nil
}

func (s *mappingStore) Update(ctx context.Context, m model.Mapping) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings SET
			source_kind = ?, source_id = ?, target_kind = ?, target_id = ?,
			source_topic = ?, target_topic = ?, direction = ?, enabled = ?,
			description = ?, updated_at = ?
		WHERE id = ?`,
		m.Source.Kind.String(), m.Source.ID, m.Target.Kind.String(), m.Target.ID,
		m.SourceTopic, m.TargetTopic, m.Direction.String(), boolToInt(m.Enabled),
		nullIfEmpty(m.Description), now, m.ID,
	)
	if err != nil {
		return wrapExecErr(ctx, "updating mapping", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *mappingStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mappings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting mapping %d: %w", id, err)
	}
	return rowsAffectedOrNotFound(res)
}

func scanMapping(scanner rowScanner) (model.Mapping, error) {
	var m model.Mapping
	var sourceKind, targetKind, direction string
	var enabled int
	var description sql.NullString

	err := scanner.Scan(&m.ID, &sourceKind, &m.Source.ID, &targetKind, &m.Target.ID,
		&m.SourceTopic, &m.TargetTopic, &direction, &enabled, &description)
	if err != nil {
		return model.Mapping{}, err
	}

	m.Source.Kind, err = parseEndpointKind(sourceKind)
	if err != nil {
		return model.Mapping{}, err
	}
	m.Target.Kind, err = parseEndpointKind(targetKind)
	if err != nil {
		return model.Mapping{}, err
	}
	m.Direction, err = parseDirection(direction)
	if err != nil {
		return model.Mapping{}, err
	}
	m.Enabled = enabled != 0
	m.Description = description.String
	return m, nil
}

func parseEndpointKind(s string) (model.EndpointKind, error) {
	switch s {
	case "mqtt":
		return model.KindMQTT, nil
	case "zmq":
		return model.KindZMQ, nil
	default:
		return 0, fmt.Errorf("unknown endpoint kind %q", s)
	}
}

func parseDirection(s string) (model.Direction, error) {
	switch s {
	case "mqtt_to_zmq":
		return model.DirMQTTToZMQ, nil
	case "zmq_to_mqtt":
		return model.DirZMQToMQTT, nil
	case "mqtt_to_mqtt":
		return model.DirMQTTToMQTT, nil
	case "zmq_to_zmq":
		return model.DirZMQToZMQ, nil
	case "bidirectional":
		return model.DirBidirectional, nil
	default:
		return 0, fmt.Errorf("unknown mapping direction %q", s)
	}
}

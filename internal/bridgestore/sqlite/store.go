// Package sqlite implements bridgestore.ConfigStore over a SQLite
// database, following the teacher's internal/device repository
// structure: one file per sub-table, prepared query strings, row-scanning
// helpers, and a sentinel ErrNotFound translated from sql.ErrNoRows.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zhxiaoyu/zeromqtt/internal/bridgestore"
)

// Store implements bridgestore.ConfigStore over a *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps an open SQLite connection as a ConfigStore. db should have
// foreign keys and a reasonable busy timeout configured by the caller
// (internal/infrastructure/database.Open does this).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ bridgestore.ConfigStore = (*Store)(nil)

func (s *Store) MQTTEndpoints() bridgestore.MQTTEndpoints { return &mqttEndpointStore{db: s.db} }
func (s *Store) ZMQEndpoints() bridgestore.ZMQEndpoints   { return &zmqEndpointStore{db: s.db} }
func (s *Store) Mappings() bridgestore.Mappings           { return &mappingStore{db: s.db} }
func (s *Store) Users() bridgestore.Users                 { return &userStore{db: s.db} }

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "unique constraint")
}

func wrapExecErr(ctx context.Context, action string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: %w", action, bridgestore.ErrConflict)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return bridgestore.ErrNotFound
	}
	return nil
}

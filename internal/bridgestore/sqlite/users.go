package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridgestore"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, username, password_hash, role, created_at, updated_at`

func (s *userStore) List(ctx context.Context) ([]bridgestore.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var out []bridgestore.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return out, nil
}

func (s *userStore) Get(ctx context.Context, id int64) (bridgestore.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return s.scanOrNotFound(row, id)
}

func (s *userStore) GetByUsername(ctx context.Context, username string) (bridgestore.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bridgestore.User{}, bridgestore.ErrNotFound
		}
		return bridgestore.User{}, fmt.Errorf("querying user %q: %w", username, err)
	}
	return u, nil
}

func (s *userStore) scanOrNotFound(row *sql.Row, id int64) (bridgestore.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bridgestore.User{}, bridgestore.ErrNotFound
		}
		return bridgestore.User{}, fmt.Errorf("querying user %d: %w", id, err)
	}
	return u, nil
}

func (s *userStore) Create(ctx context.Context, u bridgestore.User) (bridgestore.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Role, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return bridgestore.User{}, wrapExecErr(ctx, "creating user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return bridgestore.User{}, fmt.Errorf("reading new user id: %w", err)
	}
	u.ID = id
	u.CreatedAt, u.UpdatedAt = now, now
	return u, nil
}

func (s *userStore) Update(ctx context.Context, u bridgestore.User) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, password_hash = ?, role = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.PasswordHash, u.Role, now, u.ID,
	)
	if err != nil {
		return wrapExecErr(ctx, "updating user", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *userStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	return rowsAffectedOrNotFound(res)
}

func scanUser(scanner rowScanner) (bridgestore.User, error) {
	var u bridgestore.User
	var createdAt, updatedAt string

	err := scanner.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &createdAt, &updatedAt)
	if err != nil {
		return bridgestore.User{}, err
	}

	u.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return bridgestore.User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return bridgestore.User{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return u, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/gazette-watch/internal/runguard"
)

const lockSchema = `
CREATE TABLE IF NOT EXISTS run_locks (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// LockStore implements runguard.Store with one row per key.
type LockStore struct {
	pool Pool
}

// NewLockStore builds a LockStore on an existing pool.
func NewLockStore(pool Pool) (*LockStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LockStore{pool: pool}, nil
}

// EnsureSchema creates the run_locks table when absent.
func (s *LockStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, lockSchema); err != nil {
		return fmt.Errorf("create lock schema: %w", err)
	}
	return nil
}

// Get reads the value stored under key.
func (s *LockStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM run_locks WHERE name = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", runguard.ErrNotFound
		}
		return "", fmt.Errorf("select run lock: %w", err)
	}
	return value, nil
}

// Put upserts the value stored under key.
func (s *LockStore) Put(ctx context.Context, key, value string) error {
	query := `
INSERT INTO run_locks (name, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert run lock: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *LockStore) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM run_locks WHERE name = $1`, key)
	if err != nil {
		return fmt.Errorf("delete run lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return runguard.ErrNotFound
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore keeps entries in the durable_cache table.
type PGStore struct{ conn queryable }

func NewPGStore(conn queryable) *PGStore {
	return &PGStore{conn: conn}
}

func (s *PGStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.conn.QueryRow(ctx, `SELECT payload FROM durable_cache WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	return payload, true, nil
}

func (s *PGStore) Write(ctx context.Context, key string, payload []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO durable_cache (key, payload, saved_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
		key, string(payload))
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

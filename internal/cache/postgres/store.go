package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"elementx/internal/imagecache"
)

const schema = `
CREATE TABLE IF NOT EXISTS image_cache (
	key        TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	size       BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps cache objects in a single image_cache table.
type Store struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

// Open connects with the pgx stdlib driver and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schema)
	})
	return s.schemaErr
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, fmt.Errorf("ensure schema: %w", err)
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM image_cache WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO image_cache (key, payload, size, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, size = EXCLUDED.size, created_at = EXCLUDED.created_at`,
		key, value, int64(len(value)))
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM image_cache WHERE key = $1`, key)
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]imagecache.Object, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT key, size, created_at FROM image_cache
WHERE starts_with(key, $1)
ORDER BY created_at, key`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []imagecache.Object
	for rows.Next() {
		var o imagecache.Object
		if err := rows.Scan(&o.Key, &o.Size, &o.ModTime); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Package history records finished conversions in Postgres. It is optional:
// when no database is configured the rest of the service runs without it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the conversions table if needed. Keeping the
// migration in code lets docker-compose bootstrap a fresh environment.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS conversions (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	target_format TEXT NOT NULL,
	language TEXT NOT NULL,
	outcome TEXT NOT NULL,
	message TEXT,
	text_length INT NOT NULL DEFAULT 0,
	pages INT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at DESC);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Connect opens a pool against dsn and verifies it
func Connect(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS stations (
		name        VARCHAR(255) PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		input_url   TEXT NOT NULL,
		output_url  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_stations_input_url ON stations(input_url);
`

// Migrate creates the schema if it does not exist yet. Existing rows are preserved.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.Info().Msg("Running database migrations")
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("Database schema is up to date")
	return nil
}

// Package storage provides the PostgreSQL storage layer for DataPilot:
// users, folders, question history with embedded pgvector search, a
// forward-only migration runner, and the pgxpool connection lifecycle.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// DB wraps a pgxpool.Pool with the query methods of this package.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New opens a connection pool against dsn and verifies connectivity with a
// ping before returning.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerVectorTypes(ctx, conn, logger)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// registerVectorTypes teaches a fresh connection the pgvector codecs so
// question embeddings encode as vector values. Best-effort: on a database
// where the extension does not exist yet (first boot, before migrations),
// registration fails harmlessly and later connections pick the types up.
func registerVectorTypes(ctx context.Context, conn *pgx.Conn, logger *slog.Logger) error {
	if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
		logger.Debug("storage: pgvector types not registered yet", "error", err)
	}
	return nil
}

// Pool exposes the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool, waiting for checked-out connections
// to be returned.
func (db *DB) Close() {
	db.pool.Close()
}

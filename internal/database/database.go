package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hobeen-kim/postgres-mcp/internal/config"
)

// DB wraps the connection pool together with the safety rails every statement
// runs under: a client-side command deadline, a server-side statement timeout
// and a row cap for rows-returning statements.
type DB struct {
	pool             *pgxpool.Pool
	commandTimeout   time.Duration
	statementTimeout int
	maxRows          int
}

// Connect builds the pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.Database) (*DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConns = int32(cfg.PoolMax)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		pool:             pool,
		commandTimeout:   time.Duration(cfg.CommandTimeoutS) * time.Second,
		statementTimeout: cfg.StatementTimeoutMS,
		maxRows:          cfg.MaxRows,
	}, nil
}

// Close releases the pool.
func (db *DB) Close() { db.pool.Close() }

// Pool exposes the raw pool for the wire proxy.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// MaxRows is the configured default row cap.
func (db *DB) MaxRows() int { return db.maxRows }

// withTx runs fn inside a transaction under the command deadline, with the
// server-side statement timeout applied via SET LOCAL so it dies with the
// transaction. fn receives the deadline-carrying context.
// statement_timeout takes no bind parameters, hence the Sprintf.
func (db *DB) withTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, db.commandTimeout)
	defer cancel()

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", db.statementTimeout)); err != nil {
		return fmt.Errorf("failed to set statement timeout: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// HealthInfo is the healthcheck result.
type HealthInfo struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

// Healthcheck verifies connectivity and reports the server identity.
func (db *DB) Healthcheck(ctx context.Context) (HealthInfo, error) {
	var info HealthInfo
	err := db.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, "select version()").Scan(&info.Version); err != nil {
			return err
		}
		return tx.QueryRow(ctx, "select current_database()").Scan(&info.Database)
	})
	if err != nil {
		return HealthInfo{}, err
	}
	info.OK = true
	return info, nil
}

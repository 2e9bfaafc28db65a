// Package storage provides the PostgreSQL persistence layer: the pooled
// connection, the analysis/study/schema stores, and in-memory counterparts
// for tests.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// PostgreSQL driver registration.
	_ "github.com/lib/pq"
)

// healthCheckTimeout bounds the ping issued by HealthCheck.
const healthCheckTimeout = 5 * time.Second

// Sentinel errors for connection management.
var (
	// ErrNoDatabaseConnection is returned when a store is constructed or used
	// without a live connection.
	ErrNoDatabaseConnection = errors.New("no database connection")
)

// Connection wraps *sql.DB with pool settings applied from Config.
//
// Stores receive a *Connection via dependency injection and never open or
// close it themselves; the process entry point owns the lifecycle.
type Connection struct {
	db *sql.DB
}

// NewConnection opens a pooled PostgreSQL connection and verifies it with a
// ping before returning.
func NewConnection(ctx context.Context, cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Connection{db: db}, nil
}

// DB exposes the underlying handle for components that manage their own
// statements, such as the migration runner.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// ExecContext executes a statement.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query returning rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return ErrNoDatabaseConnection
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the connection pool. Safe to call on a nil receiver.
func (c *Connection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	return c.db.Close()
}

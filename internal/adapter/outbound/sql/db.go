// Package sql provides the relational implementations of the outbound
// ports (C3-C6) backed by modernc.org/sqlite, the primary store behind the
// decision service in non-development deployments.
package sql

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the shared *sql.DB handle and satisfies http.Pinger for the
// health endpoint.
type DB struct {
	conn *sql.DB
}

// Open opens (and, if necessary, creates) the sqlite database at dsn,
// applies pragmas suited to a single-writer/many-reader workload, and
// brings the schema up to date.
func Open(dsn string, maxOpenConns int) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: open %q: %w", dsn, err)
	}

	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sql: %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sql: apply schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Ping verifies connectivity for the /health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for store construction.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway, and an in-memory database only
	// exists on the connection that created it.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		-- timestamps are unix nanoseconds (UTC) so ordering is numeric
		start_date INTEGER NOT NULL,
		end_date INTEGER NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		participants_json TEXT NOT NULL DEFAULT '[]',
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		is_global_admin_event BOOLEAN NOT NULL DEFAULT FALSE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_created_by ON events (created_by, start_date DESC);
	CREATE INDEX IF NOT EXISTS idx_events_public ON events (is_public, start_date DESC);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE,
		email TEXT UNIQUE,
		password_hash TEXT,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, sqlStmt); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Package db provides the persistent store for the aqsync core: local
// entities (schedule blocks, assignments, exams), calendar mappings,
// conflict records, per-user sync cursors, and the sync run log.
//
// The database runs in embedded mode (SQLite via ncruces/go-sqlite3) with
// WAL for concurrent reads. A DSN starting with libsql:// opens a hosted
// libSQL replica instead, using the same schema and queries.
//
// Timestamps are stored as RFC 3339 text with nanosecond precision; all
// ordering comparisons that drive sync decisions happen in Go after
// parsing, never lexicographically in SQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// timeLayout is the storage format for every timestamp column. RFC3339Nano
// keeps the sub-second precision the remote API reports on event updates.
const timeLayout = time.RFC3339Nano

// DB wraps the database connection.
type DB struct {
	conn   *sql.DB
	path   string
	remote bool
}

// Open creates a database connection. Plain paths open an embedded SQLite
// file (created on demand, WAL mode); libsql:// URLs open a hosted libSQL
// database. The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open("~/.aqsync/aqsync.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	if strings.HasPrefix(path, "libsql://") {
		return openRemote(path)
	}
	return openEmbedded(path)
}

func openEmbedded(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// WAL lets poll cycles read while the resolver writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

func openRemote(dsn string) (*DB, error) {
	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping libsql database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: dsn, remote: true}, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection. Embedded databases checkpoint the
// WAL first so all changes land in the main file.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if !db.remote {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	-- Local entity tables
	CREATE TABLE IF NOT EXISTS schedule_blocks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		location TEXT,
		course_code TEXT,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		recurrence TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		course_code TEXT,
		due_date TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		location TEXT,
		notes TEXT,
		course_code TEXT,
		exam_date TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 60,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One live mapping per entity and per remote event
	CREATE TABLE IF NOT EXISTS calendar_mappings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		google_event_id TEXT NOT NULL,
		calendar_id TEXT NOT NULL DEFAULT 'primary',
		local_event_updated TEXT,
		google_event_updated TEXT,
		last_synced_at TEXT NOT NULL,
		content_hash TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(entity_type, entity_id),
		UNIQUE(user_id, google_event_id)
	);

	-- Conflicts are audit records: they reference mappings by id but carry
	-- no foreign key, so they survive mapping cleanup.
	CREATE TABLE IF NOT EXISTS sync_conflicts (
		id TEXT PRIMARY KEY,
		mapping_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		local_snapshot TEXT NOT NULL,
		remote_snapshot TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolution TEXT,
		detected_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_cursors (
		user_id TEXT NOT NULL,
		calendar_id TEXT NOT NULL,
		updated_min TEXT NOT NULL,
		last_full_sync TEXT,
		PRIMARY KEY (user_id, calendar_id)
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		created INTEGER NOT NULL DEFAULT 0,
		updated_local INTEGER NOT NULL DEFAULT 0,
		deferred INTEGER NOT NULL DEFAULT 0,
		conflicts INTEGER NOT NULL DEFAULT 0,
		noops INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		pushed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_blocks_user ON schedule_blocks(user_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_user ON assignments(user_id);
	CREATE INDEX IF NOT EXISTS idx_exams_user ON exams(user_id);
	CREATE INDEX IF NOT EXISTS idx_mappings_user ON calendar_mappings(user_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_user ON sync_conflicts(user_id, resolved);
	CREATE INDEX IF NOT EXISTS idx_runs_user ON sync_runs(user_id, started_at);

	-- At most one OPEN conflict per mapping; re-detection refreshes it
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conflicts_open
	    ON sync_conflicts(mapping_id) WHERE resolved = 0;
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return storeErr("init schema", err)
	}

	return nil
}

// formatTime renders a timestamp for storage; zero times become NULL.
func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

// parseTime reads a stored timestamp; NULL and garbage become the zero time.
func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// timeToNullString converts a time pointer to a nullable storage string.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return formatTime(*t)
}

// nullStringToTime converts a nullable storage string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

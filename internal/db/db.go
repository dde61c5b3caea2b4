// Package db provides the embedded SQLite store for tasksync.
//
// One database file holds everything the engine needs locally:
//
//   - source_accounts: connected external sources and their last sync status
//   - sync_mappings: external assignment id to internal task id, per source
//   - tasks, todo_lists, list_items: the local task/list store
//
// The database runs through the pure-Go ncruces/go-sqlite3 driver in WAL mode,
// so the CLI can read while the daemon writes.
//
// Timestamps are stored as fixed-width RFC3339 text in UTC so that string
// comparison in SQL orders them correctly. Optional timestamps are NULL when
// absent.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB

	// now is swapped in tests.
	now func() time.Time
}

// Open creates a new database connection at the specified path and makes sure
// the schema exists.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open(filepath.Join(dataDir, "tasksync.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", dsn)
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

	db := &DB{
		conn: conn,
		now:  time.Now,
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
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
	CREATE TABLE IF NOT EXISTS source_accounts (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_name TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',  -- JSON object
		status TEXT NOT NULL DEFAULT 'connected',
		last_error TEXT,
		last_sync_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One row per (source, external id); task ids may point at a remote store
	CREATE TABLE IF NOT EXISTS sync_mappings (
		source_account_id TEXT NOT NULL,
		external_id TEXT NOT NULL,
		internal_task_id TEXT NOT NULL,
		external_modified_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (source_account_id, external_id),
		FOREIGN KEY (source_account_id) REFERENCES source_accounts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_at TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		effort INTEGER,
		importance INTEGER,
		difficulty INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS todo_lists (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		auto_clear_completed INTEGER NOT NULL DEFAULT 0,
		recurrence TEXT NOT NULL DEFAULT 'none',
		category TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS list_items (
		list_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		due_at TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		added_at TEXT NOT NULL,
		PRIMARY KEY (list_id, task_id),
		FOREIGN KEY (list_id) REFERENCES todo_lists(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sources_owner ON source_accounts(owner);
	CREATE INDEX IF NOT EXISTS idx_mappings_task ON sync_mappings(internal_task_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner, completed);
	CREATE INDEX IF NOT EXISTS idx_lists_owner ON todo_lists(owner);
	CREATE INDEX IF NOT EXISTS idx_lists_window ON todo_lists(owner, start_time, end_time);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// timeLayout keeps nine fractional digits; RFC3339Nano trims them and would
// break lexical ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func intToNull(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullToInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package db provides the SQLite task store for taskd.
//
// The store keeps tasks, their two hierarchy relations, alarms and the
// task list / calendar containers in a single embedded SQLite database
// (ncruces/go-sqlite3, WAL mode). It has no knowledge of deletion cascades
// or sync triggering; the coordinators in internal/deleter and
// internal/syncadapter drive it through small interfaces.
//
// Architecture:
//   - Database file: ~/.local/share/taskd/tasks.db by default
//   - WAL mode: concurrent readers while the daemon writes
//   - Large id sets are split into chunks of ChunkSize bound arguments
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

// DefaultChunkSize stays below SQLite's default limit of 999 bound
// parameters per statement.
const DefaultChunkSize = 900

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection pool.
type DB struct {
	conn      *sql.DB
	path      string
	chunkSize int
}

// Option configures a DB.
type Option func(*DB)

// WithChunkSize overrides the number of ids bound per statement.
func WithChunkSize(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.chunkSize = n
		}
	}
}

// Open creates a new database connection at the specified path.
//
// The database is opened in WAL mode with a busy timeout. If the database
// doesn't exist it is created; call InitSchema before use.
//
// The caller MUST call Close() when done.
func Open(path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:      conn,
		path:      path,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(db)
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// ChunkSize returns the number of ids bound per statement.
func (db *DB) ChunkSize() int {
	return db.chunkSize
}

// Close checkpoints the WAL and closes the connection pool.
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

// InitSchema creates the database schema if it doesn't exist.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
// It is idempotent.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 3,
		recurrence TEXT NOT NULL DEFAULT '',
		parent INTEGER NOT NULL DEFAULT 0,  -- relation A
		sort_order INTEGER NOT NULL DEFAULT 0,
		collapsed INTEGER NOT NULL DEFAULT 0,
		read_only INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL,            -- unix millis
		modified INTEGER NOT NULL,
		due_date INTEGER NOT NULL DEFAULT 0,
		hide_until INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS alarms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task INTEGER NOT NULL,
		time INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_list_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL UNIQUE,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS task_lists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL,
		remote_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS task_list_tasks (
		task INTEGER PRIMARY KEY,
		list TEXT NOT NULL,
		remote_id TEXT NOT NULL DEFAULT '',
		parent INTEGER NOT NULL DEFAULT 0,  -- relation B
		last_sync INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS calendar_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS calendars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS calendar_tasks (
		task INTEGER PRIMARY KEY,
		calendar TEXT NOT NULL,
		object TEXT NOT NULL DEFAULT '',
		remote_id TEXT NOT NULL DEFAULT '',
		etag TEXT NOT NULL DEFAULT '',
		last_sync INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent);
	CREATE INDEX IF NOT EXISTS idx_tasks_deleted ON tasks(deleted);
	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
	CREATE INDEX IF NOT EXISTS idx_alarms_task ON alarms(task);
	CREATE INDEX IF NOT EXISTS idx_task_list_tasks_list ON task_list_tasks(list);
	CREATE INDEX IF NOT EXISTS idx_task_list_tasks_parent ON task_list_tasks(parent);
	CREATE INDEX IF NOT EXISTS idx_calendar_tasks_calendar ON calendar_tasks(calendar);
	CREATE INDEX IF NOT EXISTS idx_calendars_account ON calendars(account);
	CREATE INDEX IF NOT EXISTS idx_task_lists_account ON task_lists(account);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// millis converts a time to the stored representation; zero maps to 0.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// fromMillis is the inverse of millis.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package store provides the local SQLite database that is the single source
// of truth for notes, folders, actions, the sync queue, and audio uploads.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/glide/internal/apperr"
)

// FileName is the database file created inside the data directory.
const FileName = "glide.db"

// DB wraps a sql.DB. Reads run concurrently on the pool (WAL gives them
// isolation from the writer); writes are serialized through Write.
type DB struct {
	path string

	mu   sync.RWMutex // guards conn across Reset
	conn *sql.DB

	writeMu sync.Mutex
}

// Open opens (or creates) the database inside dir and applies the schema.
// dir must already exist.
func Open(dir string) (*DB, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("store: data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: data dir is not a directory: %s", dir)
	}
	db := &DB{path: filepath.Join(dir, FileName)}
	conn, err := openConn(db.path)
	if err != nil {
		return nil, err
	}
	db.conn = conn
	return db, nil
}

func openConn(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return conn, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Conn returns the current connection pool for read queries.
func (db *DB) Conn() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn
}

// QueryContext runs a read query.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.Conn().QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row read query.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.Conn().QueryRowContext(ctx, query, args...)
}

// Write runs fn inside a transaction while holding the writer lock.
// The transaction commits when fn returns nil.
func (db *DB) Write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("store: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage("store: commit", err)
	}
	return nil
}

// Reset discards the database file and recreates an empty schema.
// All local data, including unsent queue entries, is lost.
func (db *DB) Reset() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		_ = db.conn.Close()
		db.conn = nil
	}
	for _, p := range []string{db.path, db.path + "-wal", db.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: reset: remove %s: %w", filepath.Base(p), err)
		}
	}
	conn, err := openConn(db.path)
	if err != nil {
		return fmt.Errorf("store: reset: %w", err)
	}
	db.conn = conn
	return nil
}

// Close checkpoints the WAL and closes the database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn == nil {
		return nil
	}
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := db.conn.Close()
	db.conn = nil
	return err
}

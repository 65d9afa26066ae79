// Package sqlite implements internal/store.Store on top of SQLite via
// ncruces/go-sqlite3's pure-Go (wazero/WASM) driver, no cgo, matching the
// teacher's internal/storage/sqlite package's driver choice and bootstrap
// shape (WASM compilation cache, URI-style pragmas, WAL mode for on-disk
// files, single-connection pinning for :memory:).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/taskgraph/orchestrator/internal/types"
)

// Store implements store.Store against a SQLite database file (or an
// in-memory one for tests).
type Store struct {
	db     *sql.DB
	path   string
	memory bool
}

func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "taskorchestrator", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (creating if necessary) a SQLite-backed store at path, or an
// isolated in-memory database when path is ":memory:". busyTimeout bounds
// how long a writer waits on SQLITE_BUSY before giving up.
func New(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	timeoutMs := int64(busyTimeout / time.Millisecond)

	memory := path == ":memory:"
	var connStr string
	if memory {
		connStr = fmt.Sprintf("file:taskorchestrator?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)", timeoutMs)
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		connStr = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)", path, timeoutMs)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	absPath := path
	if !memory {
		if p, err := filepath.Abs(path); err == nil {
			absPath = p
		}
	}
	return &Store{db: db, path: absPath, memory: memory}, nil
}

func (s *Store) Close() error {
	if !s.memory {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS work_items (
	id TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES work_items(id),
	depth INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	previous_role TEXT,
	status_label TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL,
	complexity INTEGER,
	tags TEXT NOT NULL DEFAULT '[]',
	requires_verification INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	role_changed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);
CREATE INDEX IF NOT EXISTS idx_work_items_role ON work_items(role);

CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES work_items(id),
	key TEXT NOT NULL,
	role TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	UNIQUE(item_id, key)
);
CREATE INDEX IF NOT EXISTS idx_notes_item ON notes(item_id);

CREATE TABLE IF NOT EXISTS dependencies (
	id TEXT PRIMARY KEY,
	from_item_id TEXT NOT NULL REFERENCES work_items(id),
	to_item_id TEXT NOT NULL REFERENCES work_items(id),
	type TEXT NOT NULL,
	unblock_at TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dependencies_from ON dependencies(from_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(to_item_id);

CREATE TABLE IF NOT EXISTS transitions (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES work_items(id),
	previous_role TEXT NOT NULL,
	new_role TEXT NOT NULL,
	trigger TEXT NOT NULL,
	at DATETIME NOT NULL,
	summary TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transitions_item ON transitions(item_id);
CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at);
`

// wrapDBError gives every sql error a consistent AppError shape, the
// sqlite backend's analogue of the teacher's wrapDBError helper.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	return types.WrapError(types.ErrDatabase, op, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Package sqlite implements domain.Store on a single SQLite file for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const defaultPath = "data/conviction.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS markets (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL,
	asset_symbol    TEXT NOT NULL DEFAULT '',
	expires_at      INTEGER NOT NULL,
	feed            TEXT NOT NULL DEFAULT '',
	threshold       TEXT NOT NULL,
	resolved        INTEGER NOT NULL DEFAULT 0,
	winning_outcome INTEGER NOT NULL DEFAULT 0,
	total_bearish   TEXT NOT NULL DEFAULT '0',
	total_bullish   TEXT NOT NULL DEFAULT '0',
	min_stake       TEXT NOT NULL DEFAULT '0',
	created_at      INTEGER NOT NULL,
	resolved_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_markets_expires ON markets (resolved, expires_at);

CREATE TABLE IF NOT EXISTS market_participants (
	market_id INTEGER NOT NULL,
	address   TEXT NOT NULL,
	PRIMARY KEY (market_id, address)
);

CREATE TABLE IF NOT EXISTS positions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner      TEXT NOT NULL,
	market_id  INTEGER NOT NULL,
	outcome    INTEGER NOT NULL,
	stake      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions (owner);
CREATE INDEX IF NOT EXISTS idx_positions_market ON positions (market_id);

CREATE TABLE IF NOT EXISTS oracle_registrations (
	market_id     INTEGER PRIMARY KEY,
	provider      TEXT NOT NULL,
	feed          TEXT NOT NULL,
	threshold     TEXT NOT NULL,
	expected_expo INTEGER,
	registered_at INTEGER NOT NULL
);
`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type queries struct {
	db execer
}

// Store wraps a SQLite database.
type Store struct {
	queries
	path string
	db   *sql.DB
}

// Open creates (if needed) and opens the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: ensure data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := ensureWAL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{queries: queries{db: db}, path: path, db: db}, nil
}

func ensureWAL(db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			if strings.Contains(err.Error(), "database is locked") {
				time.Sleep(delay)
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("database is locked after retries")
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(&queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*queries)(nil)
)

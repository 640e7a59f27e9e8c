// Package store persists events, bindings, order books, signals, and paper
// trading state in sqlite. All writes are idempotent upserts keyed by the
// uniqueness invariants of the data model.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound maps to 404 at the HTTP layer.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument maps to 400 at the HTTP layer.
	ErrInvalidArgument = errors.New("invalid argument")
)

// dbtx is satisfied by *sql.DB and *sql.Tx so every query method works
// inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the sqlite handle. Obtain one with Open; use WithTx to run a
// group of writes atomically.
type Store struct {
	db  *sql.DB
	run dbtx
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single conn avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, run: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn against a transactional view of the store, committing on
// nil and rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fmt.Errorf("store: nested transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{run: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	sport           TEXT NOT NULL,
	competition     TEXT NOT NULL,
	start_time_utc  TEXT,
	home_team       TEXT NOT NULL,
	away_team       TEXT NOT NULL,
	title_canonical TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bindings (
	canonical_event_id TEXT NOT NULL,
	venue              TEXT NOT NULL,
	venue_market_id    TEXT NOT NULL,
	outcome_schema     TEXT NOT NULL,
	market_type        TEXT NOT NULL,
	status             TEXT NOT NULL,
	confidence         REAL NOT NULL,
	evidence           TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL,
	UNIQUE (venue, venue_market_id),
	UNIQUE (canonical_event_id, venue)
);

CREATE TABLE IF NOT EXISTS orderbook_tops (
	venue           TEXT NOT NULL,
	venue_market_id TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	best_bid        REAL NOT NULL,
	best_ask        REAL NOT NULL,
	bid_size        REAL NOT NULL,
	ask_size        REAL NOT NULL,
	ts              TEXT NOT NULL,
	UNIQUE (venue, venue_market_id, outcome)
);

CREATE TABLE IF NOT EXISTS signals (
	id                 TEXT PRIMARY KEY,
	canonical_event_id TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	buy_venue          TEXT NOT NULL,
	sell_venue         TEXT NOT NULL,
	buy_market_id      TEXT NOT NULL,
	sell_market_id     TEXT NOT NULL,
	buy_price          REAL NOT NULL,
	sell_price         REAL NOT NULL,
	size_suggested     REAL NOT NULL,
	edge_raw           REAL NOT NULL,
	edge_after_costs   REAL NOT NULL,
	confidence         REAL NOT NULL,
	status             TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	UNIQUE (canonical_event_id, outcome, buy_venue, sell_venue)
);

CREATE TABLE IF NOT EXISTS paper_positions (
	id                 TEXT PRIMARY KEY,
	canonical_event_id TEXT NOT NULL,
	signal_id          TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	buy_venue          TEXT NOT NULL,
	sell_venue         TEXT NOT NULL,
	buy_market_id      TEXT NOT NULL,
	sell_market_id     TEXT NOT NULL,
	size               REAL NOT NULL,
	entry_buy_price    REAL NOT NULL,
	entry_sell_price   REAL NOT NULL,
	fill_ratio         REAL NOT NULL,
	status             TEXT NOT NULL,
	opened_at          TEXT NOT NULL,
	closed_at          TEXT,
	realized_pnl       REAL NOT NULL DEFAULT 0,
	unrealized_pnl     REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS paper_fills (
	id             TEXT PRIMARY KEY,
	position_id    TEXT NOT NULL,
	leg            TEXT NOT NULL,
	limit_price    REAL NOT NULL,
	fill_price     REAL NOT NULL,
	requested_size REAL NOT NULL,
	filled_size    REAL NOT NULL,
	probability    REAL NOT NULL,
	ts             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	ts             TEXT NOT NULL,
	equity         REAL NOT NULL,
	realized_pnl   REAL NOT NULL,
	unrealized_pnl REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_edge ON signals (status, edge_after_costs DESC);
CREATE INDEX IF NOT EXISTS idx_positions_status ON paper_positions (status);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON portfolio_snapshots (ts);
`
	if _, err := s.run.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// storedTimeLayout pads fractional seconds to nine digits so the TEXT
// columns compare correctly under SQL string ordering.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(storedTimeLayout) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

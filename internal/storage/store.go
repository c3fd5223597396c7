// Package storage keeps balances, ledger movements, rates and the planning
// run history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"time"

	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
)

// Schema creates every table the store uses. Amounts are decimal text and
// timestamps are fixed-width UTC text so they sort lexicographically.
const Schema = `
CREATE TABLE IF NOT EXISTS balances (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	currency    TEXT NOT NULL,
	bank        TEXT NOT NULL DEFAULT '',
	owner       TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL DEFAULT '',
	amount      TEXT NOT NULL,
	unit_value  TEXT NOT NULL DEFAULT '1',
	imported_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS movements (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument_id TEXT NOT NULL,
	bank          TEXT NOT NULL DEFAULT '',
	currency      TEXT NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	amount        TEXT NOT NULL,
	occurred_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_movements_currency_time ON movements (currency, occurred_at);

CREATE TABLE IF NOT EXISTS rates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	currency    TEXT NOT NULL,
	direction   TEXT NOT NULL,
	value       TEXT NOT NULL,
	observed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rates_lookup ON rates (currency, direction, observed_at);

CREATE TABLE IF NOT EXISTS plan_runs (
	run_id              TEXT PRIMARY KEY,
	created_at          TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT '',
	severity            TEXT NOT NULL,
	need_reserve        TEXT NOT NULL,
	sell_now_foreign    TEXT NOT NULL,
	sell_now_reserve_in TEXT NOT NULL,
	remaining_reserve   TEXT NOT NULL,
	leftover            TEXT NOT NULL,
	payload             TEXT NOT NULL DEFAULT ''
);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Store is the SQLite-backed data store
type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

// Open opens (or creates) the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageOpen, "open", err).WithContext("path", path)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store.logger.WithField("path", path).Debug("Opened store")
	return store, nil
}

// New wraps an existing connection without touching the schema
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("storage"),
		now:    time.Now,
	}
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.StorageError(errors.CodeStorageOpen, "migrate", err).
			WithSuggestion("Check that the database file is writable and not from another application")
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error
func (s *Store) withTx(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, operation, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).WithField("operation", operation).Warn("Rollback failed")
		}
		return errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageWrite, operation+" failed")
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeStorageWrite, operation, err)
	}
	return nil
}

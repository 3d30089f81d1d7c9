// Package store provides storage backends for JournalPipe.
//
// It includes an in-memory store for journal entries and persistent SQLite and
// PostgreSQL stores selected by DSN.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/google/uuid"
)

// Store driver names returned by DetectDSNType.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// EntryStore persists journal entries.
// All queries are scoped to a single user and return entries newest first;
// entries sharing a date are ordered by insertion, newest first.
type EntryStore interface {
	// InsertEntry stores a new entry. An empty ID is filled in with a fresh uuid.
	InsertEntry(ctx context.Context, entry *models.JournalEntry) error
	// QueryRange returns entries with start <= date <= end.
	QueryRange(ctx context.Context, userID string, start, end time.Time) ([]models.JournalEntry, error)
	// QueryRecent returns at most limit entries.
	QueryRecent(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error)
	// Close releases any resources held by the store.
	Close() error
}

// StoreError wraps a backend failure with the operation that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Opts holds configuration options for stores.
type Opts struct {
	DSN    string // database connection string
	Driver string // DriverPostgres or DriverSQLite; detected from DSN when empty
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithPostgresDSN configures a PostgreSQL store.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = DriverPostgres
	}
}

// WithSQLiteDSN configures an SQLite store.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = DriverSQLite
	}
}

// DetectDSNType returns the database driver implied by a DSN.
// URLs and key=value connection strings are PostgreSQL; everything else is an SQLite path.
func DetectDSNType(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(trimmed, "host=") || strings.Contains(trimmed, "dbname=") ||
		(strings.Contains(trimmed, "user=") && strings.Contains(trimmed, " ")) {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open returns the store selected by opts: PostgreSQL, SQLite, or in-memory when no DSN is set.
func Open(opts ...Option) (EntryStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("Store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDSNType(cfg.DSN)
	}
	switch driver {
	case DriverPostgres:
		return NewPostgresStore(opts...)
	case DriverSQLite:
		return NewSQLiteStore(opts...)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// prepareEntry validates an entry and normalizes it for storage.
// Dates are kept in UTC at microsecond precision so every backend round-trips them identically.
func prepareEntry(entry *models.JournalEntry) error {
	if entry == nil {
		return fmt.Errorf("nil entry")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Date = entry.Date.UTC().Truncate(time.Microsecond)
	return nil
}

func validateRange(userID string, start, end time.Time) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if start.After(end) {
		return models.ErrInvalidDateRange
	}
	return nil
}

func validateRecent(userID string, limit int) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if limit <= 0 {
		return models.ErrInvalidRecentLimit
	}
	return nil
}

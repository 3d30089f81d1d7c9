// Package store provides storage backends for JournalPipe.
//
// This file implements a PostgreSQL-backed store for journal entries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/JournalPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore stores journal entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// InsertEntry stores entry, assigning an ID when empty.
func (s *PostgresStore) InsertEntry(ctx context.Context, entry *models.JournalEntry) error {
	if err := prepareEntry(entry); err != nil {
		return newStoreError("insert entry", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, user_id, entry_date, content) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.UserID, entry.Date, entry.Content)
	if err != nil {
		slog.Error("PostgresStore InsertEntry failed", "error", err, "userID", entry.UserID)
		return newStoreError("insert entry", err)
	}
	slog.Debug("PostgresStore InsertEntry succeeded", "userID", entry.UserID, "id", entry.ID)
	return nil
}

// QueryRange returns the user's entries dated within [start, end], newest first.
func (s *PostgresStore) QueryRange(ctx context.Context, userID string, start, end time.Time) ([]models.JournalEntry, error) {
	if err := validateRange(userID, start, end); err != nil {
		return nil, newStoreError("query range", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, entry_date, content FROM journal_entries
		 WHERE user_id = $1 AND entry_date >= $2 AND entry_date <= $3
		 ORDER BY entry_date DESC, created_seq DESC`,
		userID, start.UTC(), end.UTC())
	if err != nil {
		slog.Error("PostgresStore QueryRange failed", "error", err, "userID", userID)
		return nil, newStoreError("query range", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, decodeTimestamp)
	if err != nil {
		slog.Error("PostgresStore QueryRange scan failed", "error", err, "userID", userID)
		return nil, newStoreError("query range", err)
	}
	slog.Debug("PostgresStore QueryRange succeeded", "userID", userID, "count", len(entries))
	return entries, nil
}

// QueryRecent returns the user's newest entries, at most limit of them.
func (s *PostgresStore) QueryRecent(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if err := validateRecent(userID, limit); err != nil {
		return nil, newStoreError("query recent", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, entry_date, content FROM journal_entries
		 WHERE user_id = $1
		 ORDER BY entry_date DESC, created_seq DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		slog.Error("PostgresStore QueryRecent failed", "error", err, "userID", userID)
		return nil, newStoreError("query recent", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, decodeTimestamp)
	if err != nil {
		slog.Error("PostgresStore QueryRecent scan failed", "error", err, "userID", userID)
		return nil, newStoreError("query recent", err)
	}
	slog.Debug("PostgresStore QueryRecent succeeded", "userID", userID, "count", len(entries))
	return entries, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

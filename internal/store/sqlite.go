// Package store provides storage backends for JournalPipe.
//
// This file implements an SQLite-backed store for journal entries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/JournalPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore stores journal entries in an SQLite database.
// Entry dates are stored as UTC Unix microseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path (optionally a file: URI) to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dir := sqliteDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		slog.Debug("SQLite database directory verified/created", "dir", dir)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// sqliteDir returns the directory holding the database file, or "" for in-memory databases.
func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Dir(path)
}

// InsertEntry stores entry, assigning an ID when empty.
func (s *SQLiteStore) InsertEntry(ctx context.Context, entry *models.JournalEntry) error {
	if err := prepareEntry(entry); err != nil {
		return newStoreError("insert entry", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, user_id, entry_date, content) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Date.UnixMicro(), entry.Content)
	if err != nil {
		slog.Error("SQLiteStore InsertEntry failed", "error", err, "userID", entry.UserID)
		return newStoreError("insert entry", err)
	}
	slog.Debug("SQLiteStore InsertEntry succeeded", "userID", entry.UserID, "id", entry.ID)
	return nil
}

// QueryRange returns the user's entries dated within [start, end], newest first.
func (s *SQLiteStore) QueryRange(ctx context.Context, userID string, start, end time.Time) ([]models.JournalEntry, error) {
	if err := validateRange(userID, start, end); err != nil {
		return nil, newStoreError("query range", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, entry_date, content FROM journal_entries
		 WHERE user_id = ? AND entry_date >= ? AND entry_date <= ?
		 ORDER BY entry_date DESC, created_seq DESC`,
		userID, start.UTC().UnixMicro(), end.UTC().UnixMicro())
	if err != nil {
		slog.Error("SQLiteStore QueryRange failed", "error", err, "userID", userID)
		return nil, newStoreError("query range", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, decodeUnixMicro)
	if err != nil {
		slog.Error("SQLiteStore QueryRange scan failed", "error", err, "userID", userID)
		return nil, newStoreError("query range", err)
	}
	slog.Debug("SQLiteStore QueryRange succeeded", "userID", userID, "count", len(entries))
	return entries, nil
}

// QueryRecent returns the user's newest entries, at most limit of them.
func (s *SQLiteStore) QueryRecent(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if err := validateRecent(userID, limit); err != nil {
		return nil, newStoreError("query recent", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, entry_date, content FROM journal_entries
		 WHERE user_id = ?
		 ORDER BY entry_date DESC, created_seq DESC
		 LIMIT ?`,
		userID, limit)
	if err != nil {
		slog.Error("SQLiteStore QueryRecent failed", "error", err, "userID", userID)
		return nil, newStoreError("query recent", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, decodeUnixMicro)
	if err != nil {
		slog.Error("SQLiteStore QueryRecent scan failed", "error", err, "userID", userID)
		return nil, newStoreError("query recent", err)
	}
	slog.Debug("SQLiteStore QueryRecent succeeded", "userID", userID, "count", len(entries))
	return entries, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

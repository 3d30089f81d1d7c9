package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
)

type memoryRecord struct {
	entry models.JournalEntry
	seq   int64
}

// InMemoryStore is a simple in-memory store for journal entries.
type InMemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string][]memoryRecord // keyed by user ID
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]memoryRecord)}
}

// InsertEntry stores a copy of entry.
func (s *InMemoryStore) InsertEntry(ctx context.Context, entry *models.JournalEntry) error {
	if err := prepareEntry(entry); err != nil {
		return newStoreError("insert entry", err)
	}
	if err := ctx.Err(); err != nil {
		return newStoreError("insert entry", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[entry.UserID] = append(s.records[entry.UserID], memoryRecord{entry: *entry, seq: s.seq})
	slog.Debug("InMemoryStore.InsertEntry: stored", "userID", entry.UserID, "id", entry.ID)
	return nil
}

// QueryRange returns the user's entries dated within [start, end], newest first.
func (s *InMemoryStore) QueryRange(ctx context.Context, userID string, start, end time.Time) ([]models.JournalEntry, error) {
	if err := validateRange(userID, start, end); err != nil {
		return nil, newStoreError("query range", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newStoreError("query range", err)
	}
	return s.collect(userID, 0, func(e models.JournalEntry) bool {
		return !e.Date.Before(start) && !e.Date.After(end)
	}), nil
}

// QueryRecent returns the user's newest entries, at most limit of them.
func (s *InMemoryStore) QueryRecent(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if err := validateRecent(userID, limit); err != nil {
		return nil, newStoreError("query recent", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newStoreError("query recent", err)
	}
	return s.collect(userID, limit, nil), nil
}

func (s *InMemoryStore) collect(userID string, limit int, keep func(models.JournalEntry) bool) []models.JournalEntry {
	s.mu.RLock()
	matched := make([]memoryRecord, 0, len(s.records[userID]))
	for _, r := range s.records[userID] {
		if keep == nil || keep(r.entry) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].entry.Date.Equal(matched[j].entry.Date) {
			return matched[i].entry.Date.After(matched[j].entry.Date)
		}
		return matched[i].seq > matched[j].seq
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	entries := make([]models.JournalEntry, len(matched))
	for i, r := range matched {
		entries[i] = r.entry
	}
	return entries
}

// Count returns the number of stored entries across all users.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rs := range s.records {
		n += len(rs)
	}
	return n
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

package flow

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
)

// Session is the in-memory conversation state of one user.
// Fields other than UserID are only touched while mu is held; when ActiveFlow
// is FlowTypeNone the remaining fields are stale and ignored.
type Session struct {
	mu sync.Mutex

	UserID        string
	ActiveFlow    models.FlowType
	Step          int
	RangeStart    *time.Time
	RangeEnd      *time.Time
	CachedEntries []models.JournalEntry
	SelectedEntry *models.JournalEntry
	LastActive    time.Time

	insightInFlight atomic.Bool
	evicted         bool
}

// InsightInFlight reports whether an insight request is running for the user.
// Safe to call without holding the session lock.
func (s *Session) InsightInFlight() bool {
	return s.insightInFlight.Load()
}

// enter resets every field and starts ft at step 0.
func (s *Session) enter(ft models.FlowType) {
	s.ActiveFlow = ft
	s.Step = 0
	s.RangeStart = nil
	s.RangeEnd = nil
	s.CachedEntries = nil
	s.SelectedEntry = nil
}

// leave returns the session to idle.
func (s *Session) leave() {
	s.ActiveFlow = models.FlowTypeNone
	s.Step = 0
}

// SessionStats summarizes the session table.
type SessionStats struct {
	ActiveSessions int `json:"active_sessions"`
	SessionsInFlow int `json:"sessions_in_flow"`
}

// SessionStore holds sessions keyed by user ID, created lazily.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Get returns the user's session, creating an idle one if needed.
func (s *SessionStore) Get(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, LastActive: time.Now()}
		s.sessions[userID] = sess
		slog.Debug("SessionStore.Get: created session", "userID", userID)
	}
	return sess
}

// Peek returns the user's session without creating one.
func (s *SessionStore) Peek(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Len returns the number of sessions held.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats counts sessions and how many are inside a flow. A session busy
// handling an event counts as in a flow.
func (s *SessionStore) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := SessionStats{ActiveSessions: len(s.sessions)}
	for _, sess := range s.sessions {
		if !sess.mu.TryLock() {
			stats.SessionsInFlow++
			continue
		}
		if sess.ActiveFlow != models.FlowTypeNone {
			stats.SessionsInFlow++
		}
		sess.mu.Unlock()
	}
	return stats
}

// EvictIdle drops sessions inactive for longer than ttl. Sessions that are
// busy or have an insight in flight are kept.
func (s *SessionStore) EvictIdle(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for userID, sess := range s.sessions {
		if sess.InsightInFlight() || !sess.mu.TryLock() {
			continue
		}
		if now.Sub(sess.LastActive) > ttl {
			sess.evicted = true
			delete(s.sessions, userID)
			evicted++
		}
		sess.mu.Unlock()
	}
	if evicted > 0 {
		slog.Info("SessionStore.EvictIdle: evicted idle sessions", "count", evicted, "remaining", len(s.sessions), "ttl", ttl)
	}
	return evicted
}

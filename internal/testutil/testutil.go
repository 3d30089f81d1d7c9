// Package testutil provides common test utilities and fakes for JournalPipe tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
)

// Message is one outbound display call captured by RecordingDisplay.
type Message struct {
	UserID  string
	Text    string
	Options []string
}

// RecordingDisplay captures every message shown to users.
type RecordingDisplay struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned from every call after recording it.
	Err error
}

// NewRecordingDisplay creates an empty RecordingDisplay.
func NewRecordingDisplay() *RecordingDisplay {
	return &RecordingDisplay{}
}

// Display records a plain text message.
func (d *RecordingDisplay) Display(ctx context.Context, userID, text string) error {
	return d.record(Message{UserID: userID, Text: text})
}

// DisplayWithOptions records a message with reply options.
func (d *RecordingDisplay) DisplayWithOptions(ctx context.Context, userID, text string, options []string) error {
	opts := append([]string(nil), options...)
	return d.record(Message{UserID: userID, Text: text, Options: opts})
}

func (d *RecordingDisplay) record(m Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, m)
	return d.Err
}

// Messages returns a copy of everything recorded so far.
func (d *RecordingDisplay) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.messages...)
}

// Texts returns the text of every recorded message in order.
func (d *RecordingDisplay) Texts() []string {
	msgs := d.Messages()
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}
	return texts
}

// Last returns the most recent message, or a zero Message.
func (d *RecordingDisplay) Last() Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.messages) == 0 {
		return Message{}
	}
	return d.messages[len(d.messages)-1]
}

// Contains reports whether any recorded text contains substr.
func (d *RecordingDisplay) Contains(substr string) bool {
	for _, text := range d.Texts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

// Reset discards recorded messages.
func (d *RecordingDisplay) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = nil
}

// InsightCall is one recorded call to ScriptedInsights.
type InsightCall struct {
	Mode models.InsightMode
	Text string
}

// ScriptedInsights is a fake insight generator returning a fixed result.
// When Release is non-nil, Generate signals Started and blocks until Release is closed.
type ScriptedInsights struct {
	Out     string
	Err     error
	Started chan struct{}
	Release chan struct{}

	mu    sync.Mutex
	calls []InsightCall
}

// Generate records the call and returns the scripted result.
func (s *ScriptedInsights) Generate(ctx context.Context, mode models.InsightMode, text string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, InsightCall{Mode: mode, Text: text})
	s.mu.Unlock()
	if s.Release != nil {
		if s.Started != nil {
			s.Started <- struct{}{}
		}
		select {
		case <-s.Release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.Out, s.Err
}

// Calls returns the recorded calls.
func (s *ScriptedInsights) Calls() []InsightCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]InsightCall(nil), s.calls...)
}

// ErrStoreUnavailable is the cause wrapped by FailingEntryStore.
var ErrStoreUnavailable = errors.New("store unavailable")

// FailingEntryStore is an EntryStore whose every operation fails.
type FailingEntryStore struct{}

var _ store.EntryStore = FailingEntryStore{}

func (FailingEntryStore) InsertEntry(ctx context.Context, entry *models.JournalEntry) error {
	return &store.StoreError{Op: "insert entry", Err: ErrStoreUnavailable}
}

func (FailingEntryStore) QueryRange(ctx context.Context, userID string, start, end time.Time) ([]models.JournalEntry, error) {
	return nil, &store.StoreError{Op: "query range", Err: ErrStoreUnavailable}
}

func (FailingEntryStore) QueryRecent(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	return nil, &store.StoreError{Op: "query recent", Err: ErrStoreUnavailable}
}

func (FailingEntryStore) Close() error { return nil }

// SeedEntries inserts entries for userID dated at the given times, in order.
func SeedEntries(t *testing.T, s store.EntryStore, userID string, dates []time.Time, contents []string) {
	t.Helper()
	for i, d := range dates {
		e := &models.JournalEntry{UserID: userID, Date: d, Content: contents[i]}
		if err := s.InsertEntry(context.Background(), e); err != nil {
			t.Fatalf("seed entry %d: %v", i, err)
		}
	}
}

// Reporter is the subset of testing.TB used by the assertion helpers.
type Reporter interface {
	Helper()
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t Reporter, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t Reporter, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

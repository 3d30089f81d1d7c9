package flow

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
	"github.com/BTreeMap/JournalPipe/internal/testutil"
)

const testUser = "15551234567"

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type testHarness struct {
	engine   *Engine
	display  *testutil.RecordingDisplay
	store    store.EntryStore
	insights *testutil.ScriptedInsights
}

func newHarness(t *testing.T, st store.EntryStore, ins *testutil.ScriptedInsights) *testHarness {
	t.Helper()
	if st == nil {
		st = store.NewInMemoryStore()
	}
	if ins == nil {
		ins = &testutil.ScriptedInsights{Out: "scripted insight"}
	}
	d := testutil.NewRecordingDisplay()
	e := NewEngine(NewSessionStore(), d, st, ins,
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC))
	return &testHarness{engine: e, display: d, store: st, insights: ins}
}

func (h *testHarness) enter(t *testing.T, ft models.FlowType) {
	t.Helper()
	if err := h.engine.Enter(context.Background(), testUser, ft); err != nil {
		t.Fatalf("Enter(%s): %v", ft, err)
	}
}

func (h *testHarness) send(t *testing.T, ev models.Event) bool {
	t.Helper()
	handled, err := h.engine.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleEvent(%+v): %v", ev, err)
	}
	return handled
}

func (h *testHarness) text(t *testing.T, payload string) bool {
	t.Helper()
	return h.send(t, models.Event{UserID: testUser, Kind: models.EventKindText, Payload: payload})
}

func (h *testHarness) pick(t *testing.T, label string) bool {
	t.Helper()
	return h.send(t, models.Event{UserID: testUser, Kind: models.EventKindMenuSelection, Payload: label})
}

func (h *testHarness) session() *Session {
	sess, _ := h.engine.Sessions().Peek(testUser)
	return sess
}

func (h *testHarness) assertIdle(t *testing.T) {
	t.Helper()
	if sess := h.session(); sess != nil && sess.ActiveFlow != models.FlowTypeNone {
		t.Fatalf("expected idle session, got flow=%q step=%d", sess.ActiveFlow, sess.Step)
	}
}

func (h *testHarness) assertAt(t *testing.T, ft models.FlowType, step int) {
	t.Helper()
	sess := h.session()
	if sess == nil || sess.ActiveFlow != ft || sess.Step != step {
		if sess == nil {
			t.Fatalf("expected %s step %d, got no session", ft, step)
		}
		t.Fatalf("expected %s step %d, got %q step %d", ft, step, sess.ActiveFlow, sess.Step)
	}
}

func (h *testHarness) assertLastText(t *testing.T, want string) {
	t.Helper()
	if got := h.display.Last().Text; got != want {
		t.Fatalf("last message = %q, want %q", got, want)
	}
}

// seed inserts entries dated daysAgo days before testNow.
func seed(t *testing.T, st store.EntryStore, daysAgo []int, contents []string) {
	t.Helper()
	dates := make([]time.Time, len(daysAgo))
	for i, d := range daysAgo {
		dates[i] = testNow.AddDate(0, 0, -d)
	}
	testutil.SeedEntries(t, st, testUser, dates, contents)
}

// countingStore counts range queries on top of an in-memory store.
type countingStore struct {
	*store.InMemoryStore
	rangeQueries int
}

func (c *countingStore) QueryRange(ctx context.Context, userID string, start, end time.Time) ([]models.JournalEntry, error) {
	c.rangeQueries++
	return c.InMemoryStore.QueryRange(ctx, userID, start, end)
}

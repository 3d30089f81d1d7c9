package flow

import (
	"errors"
	"testing"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
	"github.com/BTreeMap/JournalPipe/internal/testutil"
)

func TestInsightsNoEntries(t *testing.T) {
	ins := &testutil.ScriptedInsights{Out: "x"}
	h := newHarness(t, nil, ins)

	h.enter(t, models.FlowTypeInsights)

	h.assertLastText(t, MsgNoEntriesForInsights)
	h.assertIdle(t)
	if len(ins.Calls()) != 0 {
		t.Error("generator should not be called without entries")
	}
}

func TestInsightsOverview(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(t, st, []int{2, 1}, []string{"older", "newer"})
	ins := &testutil.ScriptedInsights{Out: "You write more on weekdays."}
	h := newHarness(t, st, ins)

	h.enter(t, models.FlowTypeInsights)

	last := h.display.Last()
	if last.Text != MsgOverviewHeader+"You write more on weekdays." {
		t.Errorf("overview = %q", last.Text)
	}
	if len(last.Options) != 1 || last.Options[0] != models.LabelBackToMainMenu {
		t.Errorf("options = %v", last.Options)
	}
	calls := ins.Calls()
	if len(calls) != 1 || calls[0].Mode != models.InsightModeOverview || calls[0].Text != "newer\n\nolder" {
		t.Errorf("unexpected calls: %+v", calls)
	}
	h.assertAt(t, models.FlowTypeInsights, 1)

	h.text(t, "thanks!")
	h.assertAt(t, models.FlowTypeInsights, 1)
	if h.display.Last().Text != last.Text {
		t.Error("other input should be ignored without reply")
	}

	h.pick(t, models.LabelBackToMainMenu)
	h.assertLastText(t, MsgReturningToMenu)
	h.assertIdle(t)
}

func TestInsightsUsesTenMostRecent(t *testing.T) {
	st := store.NewInMemoryStore()
	days := make([]int, 12)
	contents := make([]string, 12)
	for i := range days {
		days[i] = 12 - i
		contents[i] = string(rune('a' + i))
	}
	seed(t, st, days, contents)
	ins := &testutil.ScriptedInsights{Out: "ok"}
	h := newHarness(t, st, ins)

	h.enter(t, models.FlowTypeInsights)

	calls := ins.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0].Text != "l\n\nk\n\nj\n\ni\n\nh\n\ng\n\nf\n\ne\n\nd\n\nc" {
		t.Errorf("overview text = %q", calls[0].Text)
	}
}

func TestInsightsGenerationError(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(t, st, []int{1}, []string{"entry"})
	h := newHarness(t, st, &testutil.ScriptedInsights{Err: errors.New("timeout")})

	h.enter(t, models.FlowTypeInsights)

	h.assertLastText(t, MsgOverviewError)
	h.assertAt(t, models.FlowTypeInsights, 1)
	if h.session().InsightInFlight() {
		t.Error("guard must be cleared")
	}
}

func TestInsightsStoreFailure(t *testing.T) {
	h := newHarness(t, testutil.FailingEntryStore{}, nil)

	h.enter(t, models.FlowTypeInsights)

	h.assertLastText(t, MsgStoreRetrieveError)
	h.assertIdle(t)
}

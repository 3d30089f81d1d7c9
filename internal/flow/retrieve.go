package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
)

// Retrieve Entries flow messages.
const (
	MsgSelectRange        = "Select a date range:"
	MsgInvalidOption      = "Invalid option. Please try again."
	MsgEnterStartDate     = "Please enter the start date (YYYY-MM-DD):"
	MsgInvalidStartDate   = "Invalid date format. Please enter the start date (YYYY-MM-DD):"
	MsgEnterEndDate       = "Please enter the end date (YYYY-MM-DD):"
	MsgInvalidEndDate     = "Invalid date format. Please enter the end date (YYYY-MM-DD):"
	MsgEndBeforeStart     = "The end date must not be before the start date. Please enter the end date (YYYY-MM-DD):"
	MsgNoEntriesInRange   = "No entries found for the selected date range."
	MsgRetrievalComplete  = "Retrieval complete."
	MsgNoEntrySelected    = "No entry selected. Please choose an entry first."
	MsgGeneratingInsights = "Generating insights... Please wait."
	MsgEntryInsightsError = "I apologize, but I encountered an error while generating insights. Please try again later."
	MsgInvalidEntryNumber = "Invalid entry number. Please try again, type \"done\" to finish, or \"Back to Main Menu\" to return."
	MsgEntryViewPrompt    = "Select an option or enter another entry number to read more."
)

// Step indices of the Retrieve Entries flow.
const (
	retrieveStepPrompt = iota
	retrieveStepRange
	retrieveStepStartDate
	retrieveStepEndDate
	retrieveStepSelect
)

// rangeOptions are offered at the start of the Retrieve Entries flow.
var rangeOptions = []string{
	models.LabelLast7Days,
	models.LabelLast30Days,
	models.LabelCustomRange,
	models.LabelAllEntries,
	models.LabelBackToMainMenu,
}

// entryViewOptions are offered after a full entry is shown.
var entryViewOptions = []string{
	models.LabelGetEntryInsights,
	models.LabelBackToEntries,
	models.LabelBackToMainMenu,
}

func retrieveSteps() []Step {
	steps := make([]Step, 5)
	steps[retrieveStepPrompt] = promptRangeStep
	steps[retrieveStepRange] = chooseRangeStep
	steps[retrieveStepStartDate] = startDateStep
	steps[retrieveStepEndDate] = endDateStep
	steps[retrieveStepSelect] = selectEntryStep
	return steps
}

func promptRangeStep(ctx context.Context, sc *StepContext) (Transition, error) {
	sc.Ask(ctx, MsgSelectRange, rangeOptions...)
	return Advance(), nil
}

func chooseRangeStep(ctx context.Context, sc *StepContext) (Transition, error) {
	ev := sc.Event
	loc := sc.engine.loc
	now := sc.Now.In(loc)

	var start time.Time
	switch {
	case ev.Selected(models.LabelBackToMainMenu):
		sc.ShowMainMenu(ctx, MsgReturningToMenu)
		return Leave(), nil
	case ev.Selected(models.LabelLast7Days):
		start = startOfDay(now.AddDate(0, 0, -7))
	case ev.Selected(models.LabelLast30Days):
		start = startOfDay(now.AddDate(0, 0, -30))
	case ev.Selected(models.LabelAllEntries):
		start = time.Unix(0, 0).In(loc)
	case ev.Selected(models.LabelCustomRange):
		sc.Say(ctx, MsgEnterStartDate)
		return Advance(), nil
	default:
		sc.Ask(ctx, MsgInvalidOption, rangeOptions...)
		return Repeat(), nil
	}
	return queryAndShow(ctx, sc, start, now, JumpTo(retrieveStepSelect))
}

func startDateStep(ctx context.Context, sc *StepContext) (Transition, error) {
	start, ok := parseDate(sc.Event, sc.engine.loc)
	if !ok {
		sc.Say(ctx, MsgInvalidStartDate)
		return Repeat(), nil
	}
	sc.Session.RangeStart = &start
	sc.Say(ctx, MsgEnterEndDate)
	return Advance(), nil
}

func endDateStep(ctx context.Context, sc *StepContext) (Transition, error) {
	day, ok := parseDate(sc.Event, sc.engine.loc)
	if !ok {
		sc.Say(ctx, MsgInvalidEndDate)
		return Repeat(), nil
	}
	start := sc.Session.RangeStart
	if start == nil {
		return Leave(), errors.New("end date entered without a start date")
	}
	if day.Before(*start) {
		sc.Say(ctx, MsgEndBeforeStart)
		return Repeat(), nil
	}
	return queryAndShow(ctx, sc, *start, endOfDay(day), Advance())
}

// queryAndShow loads entries for [start, end], caches and renders them, and
// returns next when there is something to browse.
func queryAndShow(ctx context.Context, sc *StepContext, start, end time.Time, next Transition) (Transition, error) {
	entries, err := sc.Store().QueryRange(ctx, sc.UserID(), start, end)
	if err != nil {
		var se *store.StoreError
		if !errors.As(err, &se) {
			return Leave(), err
		}
		slog.Error("RetrieveEntries: query failed", "userID", sc.UserID(), "error", err)
		sc.ShowMainMenu(ctx, MsgStoreRetrieveError)
		return Leave(), nil
	}
	if len(entries) == 0 {
		sc.ShowMainMenu(ctx, MsgNoEntriesInRange)
		return Leave(), nil
	}

	sess := sc.Session
	sess.RangeStart = &start
	sess.RangeEnd = &end
	sess.CachedEntries = entries
	sess.SelectedEntry = nil
	slog.Debug("RetrieveEntries: entries cached", "userID", sc.UserID(), "count", len(entries))
	showEntryList(ctx, sc)
	return next, nil
}

func selectEntryStep(ctx context.Context, sc *StepContext) (Transition, error) {
	ev := sc.Event
	sess := sc.Session

	switch {
	case ev.Kind != models.EventKindCommand && strings.EqualFold(strings.TrimSpace(ev.Payload), "done"):
		sc.ShowMainMenu(ctx, MsgRetrievalComplete)
		return Leave(), nil
	case ev.Selected(models.LabelBackToMainMenu):
		sc.ShowMainMenu(ctx, MsgReturningToMenu)
		return Leave(), nil
	case ev.Selected(models.LabelBackToEntries):
		showEntryList(ctx, sc)
		return Repeat(), nil
	case ev.Selected(models.LabelGetEntryInsights):
		return entryInsights(ctx, sc)
	}

	n, err := strconv.Atoi(strings.TrimSpace(ev.Payload))
	if ev.Kind == models.EventKindCommand || err != nil || n < 1 || n > len(sess.CachedEntries) {
		sc.Say(ctx, MsgInvalidEntryNumber)
		return Repeat(), nil
	}
	selected := &sess.CachedEntries[n-1]
	sess.SelectedEntry = selected
	sc.Say(ctx, fmt.Sprintf("Full entry for %s:\n\n%s", sc.FormatDate(selected.Date), selected.Content))
	sc.Ask(ctx, MsgEntryViewPrompt, entryViewOptions...)
	return Repeat(), nil
}

// entryInsights generates single-entry insights for the selected entry.
func entryInsights(ctx context.Context, sc *StepContext) (Transition, error) {
	sess := sc.Session
	if sess.SelectedEntry == nil {
		sc.Say(ctx, MsgNoEntrySelected)
		return Repeat(), nil
	}
	entry := *sess.SelectedEntry

	sc.Say(ctx, MsgGeneratingInsights)
	sess.insightInFlight.Store(true)
	text, err := func() (string, error) {
		defer sess.insightInFlight.Store(false)
		return sc.Insights().Generate(ctx, models.InsightModeEntry, entry.Content)
	}()
	if err != nil {
		slog.Error("RetrieveEntries: entry insights failed", "userID", sc.UserID(), "entryID", entry.ID, "error", err)
		sc.Ask(ctx, MsgEntryInsightsError, entryViewOptions...)
		return Repeat(), nil
	}
	sc.Ask(ctx, fmt.Sprintf("Insights for entry on %s:\n\n%s", sc.FormatDate(entry.Date), text), entryViewOptions...)
	return Repeat(), nil
}

// parseDate strictly parses a YYYY-MM-DD payload as midnight in loc.
func parseDate(ev models.Event, loc *time.Location) (time.Time, bool) {
	if ev.Kind == models.EventKindCommand {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(ev.Payload), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay returns the last representable instant of t's calendar day.
func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

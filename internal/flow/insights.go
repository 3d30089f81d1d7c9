package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
)

// RecentEntryLimit is how many entries the Insights flow summarizes.
const RecentEntryLimit = 10

// Insights flow messages.
const (
	MsgNoEntriesForInsights = "No entries found to generate insights."
	MsgOverviewHeader       = "Here are some insights based on your recent entries:\n\n"
	MsgOverviewError        = "Sorry, there was an error generating insights. Please try again later."
)

func insightsSteps() []Step {
	return []Step{
		overviewStep,
		overviewDoneStep,
	}
}

func overviewStep(ctx context.Context, sc *StepContext) (Transition, error) {
	entries, err := sc.Store().QueryRecent(ctx, sc.UserID(), RecentEntryLimit)
	if err != nil {
		var se *store.StoreError
		if !errors.As(err, &se) {
			return Leave(), err
		}
		slog.Error("Insights: recent query failed", "userID", sc.UserID(), "error", err)
		sc.ShowMainMenu(ctx, MsgStoreRetrieveError)
		return Leave(), nil
	}
	if len(entries) == 0 {
		sc.ShowMainMenu(ctx, MsgNoEntriesForInsights)
		return Leave(), nil
	}

	contents := make([]string, len(entries))
	for i, e := range entries {
		contents[i] = e.Content
	}

	sess := sc.Session
	sess.insightInFlight.Store(true)
	text, err := func() (string, error) {
		defer sess.insightInFlight.Store(false)
		return sc.Insights().Generate(ctx, models.InsightModeOverview, strings.Join(contents, "\n\n"))
	}()
	if err != nil {
		slog.Error("Insights: overview generation failed", "userID", sc.UserID(), "error", err)
		sc.Ask(ctx, MsgOverviewError, models.LabelBackToMainMenu)
		return Advance(), nil
	}
	sc.Ask(ctx, MsgOverviewHeader+text, models.LabelBackToMainMenu)
	return Advance(), nil
}

func overviewDoneStep(ctx context.Context, sc *StepContext) (Transition, error) {
	if sc.Event.Selected(models.LabelBackToMainMenu) {
		sc.ShowMainMenu(ctx, MsgReturningToMenu)
		return Leave(), nil
	}
	return Repeat(), nil
}

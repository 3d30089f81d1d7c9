package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
)

// New Entry flow messages.
const (
	MsgEnterEntry      = "Please enter your journal entry:"
	MsgEntryEmpty      = "Your entry is empty. Please enter your journal entry:"
	MsgEntryCancelled  = "Entry cancelled."
	MsgEntrySaved      = "Journal entry saved successfully!"
	MsgEntrySaveFailed = "Sorry, there was an error saving your entry. Please try again."
)

// MsgEntryTooLong is shown when an entry exceeds models.MaxEntryContentLength.
var MsgEntryTooLong = fmt.Sprintf("Your entry is too long (maximum %d characters). Please enter a shorter journal entry:", models.MaxEntryContentLength)

func newEntrySteps() []Step {
	return []Step{
		promptEntryStep,
		saveEntryStep,
	}
}

func promptEntryStep(ctx context.Context, sc *StepContext) (Transition, error) {
	sc.Ask(ctx, MsgEnterEntry, models.LabelCancel)
	return Advance(), nil
}

func saveEntryStep(ctx context.Context, sc *StepContext) (Transition, error) {
	if sc.Event.Selected(models.LabelCancel) {
		sc.ShowMainMenu(ctx, MsgEntryCancelled)
		return Leave(), nil
	}
	if sc.Event.Kind == models.EventKindCommand {
		sc.Ask(ctx, MsgEnterEntry, models.LabelCancel)
		return Repeat(), nil
	}

	entry := &models.JournalEntry{
		UserID:  sc.UserID(),
		Date:    sc.Now,
		Content: sc.Event.Payload,
	}
	if err := entry.Validate(); err != nil {
		switch {
		case errors.Is(err, models.ErrEmptyContent):
			sc.Ask(ctx, MsgEntryEmpty, models.LabelCancel)
			return Repeat(), nil
		case errors.Is(err, models.ErrContentTooLong):
			sc.Ask(ctx, MsgEntryTooLong, models.LabelCancel)
			return Repeat(), nil
		default:
			return Leave(), fmt.Errorf("invalid entry: %w", err)
		}
	}

	if err := sc.Store().InsertEntry(ctx, entry); err != nil {
		var se *store.StoreError
		if !errors.As(err, &se) {
			return Leave(), err
		}
		slog.Error("NewEntry: save failed", "userID", sc.UserID(), "error", err)
		sc.ShowMainMenu(ctx, MsgEntrySaveFailed)
		return Leave(), nil
	}
	slog.Info("NewEntry: entry saved", "userID", sc.UserID(), "id", entry.ID)
	sc.ShowMainMenu(ctx, MsgEntrySaved)
	return Leave(), nil
}

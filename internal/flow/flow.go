// Package flow implements the per-user conversation state machine: sessions,
// the flow engine, and the New Entry, Retrieve Entries and Insights flows.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
)

// User-facing messages shared across flows.
const (
	MsgGenericError       = "An error occurred while processing your request. Please try again later."
	MsgPleaseWait         = "Please wait, I'm still generating insights..."
	MsgReturningToMenu    = "Returning to main menu."
	MsgStoreRetrieveError = "Sorry, there was an error retrieving your entries. Please try again later."
)

// Display is the outbound side of the chat transport.
type Display interface {
	Display(ctx context.Context, userID, text string) error
	DisplayWithOptions(ctx context.Context, userID, text string, options []string) error
}

// InsightGenerator produces insight text for journal content.
type InsightGenerator interface {
	Generate(ctx context.Context, mode models.InsightMode, text string) (string, error)
}

type transitionKind int

const (
	transitionAdvance transitionKind = iota
	transitionJump
	transitionRepeat
	transitionLeave
)

// Transition tells the engine where a session goes after a step.
type Transition struct {
	kind   transitionKind
	target int
}

// Advance moves to the next step; past the last step it leaves the flow.
func Advance() Transition { return Transition{kind: transitionAdvance} }

// JumpTo moves to step k (0-based).
func JumpTo(k int) Transition { return Transition{kind: transitionJump, target: k} }

// Repeat stays on the current step.
func Repeat() Transition { return Transition{kind: transitionRepeat} }

// Leave ends the flow and returns the user to the idle main menu.
func Leave() Transition { return Transition{kind: transitionLeave} }

func (t Transition) String() string {
	switch t.kind {
	case transitionAdvance:
		return "advance"
	case transitionJump:
		return "jump"
	case transitionRepeat:
		return "repeat"
	default:
		return "leave"
	}
}

// Step handles one event for the step it is registered at.
type Step func(ctx context.Context, sc *StepContext) (Transition, error)

// StepContext is what a step sees: the user's session, the triggering event
// and the engine's collaborators.
type StepContext struct {
	Session *Session
	Event   models.Event
	Now     time.Time

	engine *Engine
}

// UserID returns the session owner.
func (sc *StepContext) UserID() string {
	return sc.Session.UserID
}

// Store returns the entry store.
func (sc *StepContext) Store() store.EntryStore {
	return sc.engine.store
}

// Insights returns the insight generator.
func (sc *StepContext) Insights() InsightGenerator {
	return sc.engine.insights
}

// Say shows plain text. Transport failures are logged, not propagated.
func (sc *StepContext) Say(ctx context.Context, text string) {
	if err := sc.engine.display.Display(ctx, sc.UserID(), text); err != nil {
		slog.Warn("StepContext.Say: display failed", "userID", sc.UserID(), "error", err)
	}
}

// Ask shows text with reply options.
func (sc *StepContext) Ask(ctx context.Context, text string, options ...string) {
	if err := sc.engine.display.DisplayWithOptions(ctx, sc.UserID(), text, options); err != nil {
		slog.Warn("StepContext.Ask: display failed", "userID", sc.UserID(), "error", err)
	}
}

// ShowMainMenu shows text with the idle main menu options.
func (sc *StepContext) ShowMainMenu(ctx context.Context, text string) {
	sc.Ask(ctx, text, models.MainMenuOptions...)
}

// FormatDate renders t as YYYY-MM-DD in the engine's location.
func (sc *StepContext) FormatDate(t time.Time) string {
	return t.In(sc.engine.loc).Format(models.DateLayout)
}

package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/store"
)

// ErrUnknownFlow is returned by Enter for flow types with no registered steps.
var ErrUnknownFlow = errors.New("unknown flow type")

// Engine drives sessions through their active flow.
type Engine struct {
	sessions *SessionStore
	display  Display
	store    store.EntryStore
	insights InsightGenerator
	flows    map[models.FlowType][]Step
	now      func() time.Time
	loc      *time.Location
}

// Opts holds configuration options for the Engine.
type Opts struct {
	Now      func() time.Time
	Location *time.Location
}

// Option defines a configuration option for the Engine.
type Option func(*Opts)

// WithClock overrides the engine's notion of the current time.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithLocation sets the time zone used for calendar days and displayed dates.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// NewEngine creates an Engine with the three journaling flows registered.
func NewEngine(sessions *SessionStore, display Display, st store.EntryStore, insights InsightGenerator, opts ...Option) *Engine {
	cfg := Opts{Now: time.Now, Location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if sessions == nil {
		sessions = NewSessionStore()
	}
	e := &Engine{
		sessions: sessions,
		display:  display,
		store:    st,
		insights: insights,
		flows:    make(map[models.FlowType][]Step),
		now:      cfg.Now,
		loc:      cfg.Location,
	}
	e.Register(models.FlowTypeNewEntry, newEntrySteps())
	e.Register(models.FlowTypeRetrieveEntries, retrieveSteps())
	e.Register(models.FlowTypeInsights, insightsSteps())
	return e
}

// Register associates a FlowType with its ordered steps. Unknown flow types
// are ignored.
func (e *Engine) Register(ft models.FlowType, steps []Step) {
	if !models.IsValidFlowType(ft) {
		slog.Warn("Engine.Register: ignoring unknown flow type", "flow", ft)
		return
	}
	e.flows[ft] = steps
}

// Sessions returns the engine's session store.
func (e *Engine) Sessions() *SessionStore {
	return e.sessions
}

// InsightInFlight reports whether the user is waiting on an insight request.
func (e *Engine) InsightInFlight(userID string) bool {
	sess, ok := e.sessions.Peek(userID)
	return ok && sess.InsightInFlight()
}

// lock returns the user's session with its mutex held, skipping sessions
// evicted between lookup and locking.
func (e *Engine) lock(userID string) *Session {
	for {
		sess := e.sessions.Get(userID)
		sess.mu.Lock()
		if !sess.evicted {
			sess.LastActive = e.now()
			return sess
		}
		sess.mu.Unlock()
	}
}

// pleaseWait tells the user an insight request is still running.
func (e *Engine) pleaseWait(ctx context.Context, userID string) {
	if err := e.display.Display(ctx, userID, MsgPleaseWait); err != nil {
		slog.Warn("Engine: please-wait display failed", "userID", userID, "error", err)
	}
}

// Enter resets the user's session into ft and runs its first step.
func (e *Engine) Enter(ctx context.Context, userID string, ft models.FlowType) error {
	steps, ok := e.flows[ft]
	if !models.IsValidFlowType(ft) || !ok || len(steps) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownFlow, ft)
	}
	if sess, ok := e.sessions.Peek(userID); ok && sess.InsightInFlight() {
		e.pleaseWait(ctx, userID)
		return nil
	}
	sess := e.lock(userID)
	defer sess.mu.Unlock()

	slog.Debug("Engine.Enter: starting flow", "userID", userID, "flow", ft)
	sess.enter(ft)
	e.runStep(ctx, sess, models.Event{UserID: userID})
	return nil
}

// HandleEvent advances the user's active flow. It returns handled=false when
// the user is idle so the caller can interpret the event as a menu command.
func (e *Engine) HandleEvent(ctx context.Context, ev models.Event) (bool, error) {
	if ev.UserID == "" {
		return false, models.ErrEmptyUserID
	}
	if sess, ok := e.sessions.Peek(ev.UserID); ok && sess.InsightInFlight() {
		slog.Debug("Engine.HandleEvent: insight in flight, deferring user", "userID", ev.UserID)
		e.pleaseWait(ctx, ev.UserID)
		return true, nil
	}
	sess := e.lock(ev.UserID)
	defer sess.mu.Unlock()

	if sess.ActiveFlow == models.FlowTypeNone {
		return false, nil
	}
	e.runStep(ctx, sess, ev)
	return true, nil
}

// Reset abandons any active flow for the user. It reports whether a flow was active.
func (e *Engine) Reset(ctx context.Context, userID string) bool {
	sess := e.lock(userID)
	defer sess.mu.Unlock()
	wasActive := sess.ActiveFlow != models.FlowTypeNone
	if wasActive {
		slog.Debug("Engine.Reset: leaving flow", "userID", userID, "flow", sess.ActiveFlow, "step", sess.Step)
	}
	sess.leave()
	return wasActive
}

// runStep executes the current step with the session locked, containing
// step errors and panics.
func (e *Engine) runStep(ctx context.Context, sess *Session, ev models.Event) {
	flowType, step := sess.ActiveFlow, sess.Step
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine: step panicked", "userID", sess.UserID, "flow", flowType, "step", step, "panic", r, "stack", string(debug.Stack()))
			e.fail(ctx, sess, fmt.Errorf("step panicked: %v", r))
		}
	}()

	steps := e.flows[flowType]
	if step < 0 || step >= len(steps) {
		e.fail(ctx, sess, fmt.Errorf("flow %q has no step %d", flowType, step))
		return
	}

	sc := &StepContext{Session: sess, Event: ev, Now: e.now(), engine: e}
	tr, err := steps[step](ctx, sc)
	if err != nil {
		e.fail(ctx, sess, err)
		return
	}
	e.apply(sess, tr, len(steps))
	slog.Debug("Engine: step complete", "userID", sess.UserID, "flow", flowType, "step", step, "transition", tr, "next", sess.Step, "active", sess.ActiveFlow)
}

func (e *Engine) apply(sess *Session, tr Transition, n int) {
	switch tr.kind {
	case transitionAdvance:
		sess.Step++
		if sess.Step >= n {
			sess.leave()
		}
	case transitionJump:
		if tr.target < 0 || tr.target >= n {
			slog.Error("Engine: jump target out of range", "userID", sess.UserID, "flow", sess.ActiveFlow, "target", tr.target)
			sess.leave()
			return
		}
		sess.Step = tr.target
	case transitionRepeat:
	case transitionLeave:
		sess.leave()
	}
}

// fail logs err, clears the insight guard, resets the session and shows the generic error.
func (e *Engine) fail(ctx context.Context, sess *Session, err error) {
	slog.Error("Engine: flow step failed", "userID", sess.UserID, "flow", sess.ActiveFlow, "step", sess.Step, "error", err)
	sess.insightInFlight.Store(false)
	sess.leave()
	if derr := e.display.Display(ctx, sess.UserID, MsgGenericError); derr != nil {
		slog.Warn("Engine: error display failed", "userID", sess.UserID, "error", derr)
	}
}

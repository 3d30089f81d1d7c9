package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/flow"
	"github.com/BTreeMap/JournalPipe/internal/models"
)

const (
	// DefaultWorkerIdleTimeout retires a user's worker after this long without events.
	DefaultWorkerIdleTimeout = 2 * time.Minute
	// DefaultWorkerQueueSize bounds the events queued for a single user.
	DefaultWorkerQueueSize = 32
)

// Router replies.
const (
	MsgWelcome        = "Welcome to your journaling bot!"
	MsgMainMenu       = "Main Menu"
	MsgMainMenuHint   = "Please choose an option from the main menu:"
	MsgCancelled      = "Cancelled. Returning to main menu."
	MsgUnknownCommand = "Unknown command. Type /help to see what I can do."
	MsgNoEntriesYet   = "Please start by retrieving entries first."
	MsgTooManyPending = "I'm still working through your previous messages. Please try again in a moment."
	MsgHelp           = "Here are the available commands:\n\n" +
		"New Entry - Create a new journal entry\n" +
		"Retrieve Entries - View your past entries with date range selection\n" +
		"Get Insights - Get AI-powered insights from your entries\n" +
		"Help - Show this help message\n\n" +
		"/menu shows the main menu and /cancel stops whatever you are doing."
)

// Commands understood in any state.
const (
	CommandStart  = "start"
	CommandMenu   = "menu"
	CommandCancel = "cancel"
	CommandHelp   = "help"
)

// Classify turns raw inbound text into an event. Non-command payloads keep
// the text exactly as sent; match labels with Event.Selected.
func Classify(userID, text string) models.Event {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		name := strings.TrimPrefix(trimmed, "/")
		if i := strings.IndexFunc(name, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }); i >= 0 {
			name = name[:i]
		}
		if i := strings.IndexByte(name, '@'); i >= 0 {
			name = name[:i]
		}
		return models.Event{UserID: userID, Kind: models.EventKindCommand, Payload: strings.ToLower(name)}
	}
	if _, ok := models.CanonicalLabel(text); ok {
		return models.Event{UserID: userID, Kind: models.EventKindMenuSelection, Payload: text}
	}
	return models.Event{UserID: userID, Kind: models.EventKindText, Payload: text}
}

// RouterOpts configures a Router.
type RouterOpts struct {
	WorkerIdleTimeout time.Duration
	QueueSize         int
}

// RouterOption configures a Router.
type RouterOption func(*RouterOpts)

// WithWorkerIdleTimeout sets how long an idle per-user worker lives.
func WithWorkerIdleTimeout(d time.Duration) RouterOption {
	return func(o *RouterOpts) { o.WorkerIdleTimeout = d }
}

// WithQueueSize sets the per-user event queue capacity.
func WithQueueSize(n int) RouterOption {
	return func(o *RouterOpts) { o.QueueSize = n }
}

// Router classifies inbound messages and runs them through the flow engine,
// one worker per user so each user's messages are handled in arrival order.
type Router struct {
	engine  *flow.Engine
	service Service
	display flow.Display

	idleTimeout time.Duration
	queueSize   int

	dedup *InboundDedup

	mu      sync.Mutex
	workers map[string]chan models.Event
	wg      sync.WaitGroup
}

// NewRouter creates a Router reading from service and replying through display.
func NewRouter(engine *flow.Engine, service Service, display flow.Display, opts ...RouterOption) *Router {
	cfg := RouterOpts{
		WorkerIdleTimeout: DefaultWorkerIdleTimeout,
		QueueSize:         DefaultWorkerQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.WorkerIdleTimeout <= 0 {
		cfg.WorkerIdleTimeout = DefaultWorkerIdleTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultWorkerQueueSize
	}
	return &Router{
		engine:      engine,
		service:     service,
		display:     display,
		idleTimeout: cfg.WorkerIdleTimeout,
		queueSize:   cfg.QueueSize,
		dedup:       NewInboundDedup(),
		workers:     make(map[string]chan models.Event),
	}
}

// PruneDuplicates forgets inbound message IDs older than window.
func (r *Router) PruneDuplicates(window time.Duration) int {
	return r.dedup.Prune(time.Now().Add(-window))
}

// Start consumes the service's responses until ctx is cancelled or the
// channel closes.
func (r *Router) Start(ctx context.Context) {
	slog.Info("Router starting response processing")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer slog.Info("Router stopped response processing")
		for {
			select {
			case response, ok := <-r.service.Responses():
				if !ok {
					slog.Debug("Router responses channel closed")
					return
				}
				if err := r.Dispatch(ctx, response); err != nil {
					slog.Error("Router failed to dispatch response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the consumer loop and every worker have exited.
func (r *Router) Wait() {
	r.wg.Wait()
}

// ActiveWorkers returns the number of live per-user workers.
func (r *Router) ActiveWorkers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Dispatch canonicalizes the sender, classifies the message and queues it on
// the sender's worker. A user waiting on an insight is answered immediately.
func (r *Router) Dispatch(ctx context.Context, response models.Response) error {
	userID, err := r.service.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		return err
	}
	if !r.dedup.RecordInbound(response.MessageID, userID) {
		slog.Debug("Router.Dispatch: duplicate delivery ignored", "userID", userID, "messageID", response.MessageID)
		return nil
	}
	ev := Classify(userID, response.Body)
	slog.Debug("Router.Dispatch: classified", "userID", userID, "kind", ev.Kind)

	if r.engine.InsightInFlight(userID) {
		r.say(ctx, userID, flow.MsgPleaseWait)
		return nil
	}
	if !r.enqueue(ctx, ev) {
		slog.Warn("Router: user queue full, dropping event", "userID", ev.UserID)
		r.say(ctx, ev.UserID, MsgTooManyPending)
	}
	return nil
}

// enqueue hands ev to the user's worker and reports false when its queue is full.
func (r *Router) enqueue(ctx context.Context, ev models.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue, ok := r.workers[ev.UserID]
	if !ok {
		queue = make(chan models.Event, r.queueSize)
		r.workers[ev.UserID] = queue
		r.wg.Add(1)
		go r.runWorker(ctx, ev.UserID, queue)
	}
	select {
	case queue <- ev:
		return true
	default:
		return false
	}
}

// runWorker handles one user's events in order and retires after the idle
// timeout. Retirement happens under r.mu with an empty queue so no queued
// event is lost.
func (r *Router) runWorker(ctx context.Context, userID string, queue chan models.Event) {
	defer r.wg.Done()
	timer := time.NewTimer(r.idleTimeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-queue:
			r.Handle(ctx, ev)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.idleTimeout)
		case <-timer.C:
			r.mu.Lock()
			if len(queue) == 0 {
				delete(r.workers, userID)
				r.mu.Unlock()
				slog.Debug("Router: worker retired", "userID", userID)
				return
			}
			r.mu.Unlock()
			timer.Reset(r.idleTimeout)
		case <-ctx.Done():
			r.mu.Lock()
			delete(r.workers, userID)
			r.mu.Unlock()
			return
		}
	}
}

// Handle processes a single event synchronously: global commands first, then
// the active flow, then the idle main menu.
func (r *Router) Handle(ctx context.Context, ev models.Event) {
	if ev.Kind == models.EventKindCommand && r.handleGlobalCommand(ctx, ev) {
		return
	}

	handled, err := r.engine.HandleEvent(ctx, ev)
	if err != nil {
		slog.Error("Router.Handle: engine rejected event", "userID", ev.UserID, "error", err)
		return
	}
	if handled {
		return
	}
	r.handleMainMenu(ctx, ev)
}

// handleGlobalCommand reports whether ev was one of the commands valid in any state.
func (r *Router) handleGlobalCommand(ctx context.Context, ev models.Event) bool {
	switch ev.Payload {
	case CommandStart:
		r.reset(ctx, ev.UserID)
		r.showMenu(ctx, ev.UserID, MsgWelcome)
	case CommandMenu:
		r.reset(ctx, ev.UserID)
		r.showMenu(ctx, ev.UserID, MsgMainMenu)
	case CommandCancel:
		r.reset(ctx, ev.UserID)
		r.showMenu(ctx, ev.UserID, MsgCancelled)
	case CommandHelp:
		r.say(ctx, ev.UserID, MsgHelp)
	default:
		return false
	}
	return true
}

// handleMainMenu interprets an event from an idle user.
func (r *Router) handleMainMenu(ctx context.Context, ev models.Event) {
	if ev.Kind == models.EventKindCommand {
		r.say(ctx, ev.UserID, MsgUnknownCommand)
		return
	}
	switch {
	case ev.Selected(models.LabelNewEntry):
		r.enter(ctx, ev.UserID, models.FlowTypeNewEntry)
	case ev.Selected(models.LabelRetrieveEntries):
		r.enter(ctx, ev.UserID, models.FlowTypeRetrieveEntries)
	case ev.Selected(models.LabelGetInsights):
		r.enter(ctx, ev.UserID, models.FlowTypeInsights)
	case ev.Selected(models.LabelHelp):
		r.showMenu(ctx, ev.UserID, MsgHelp)
	case ev.Selected(models.LabelBackToMainMenu):
		r.showMenu(ctx, ev.UserID, MsgMainMenu)
	case ev.Selected(models.LabelBackToEntries):
		r.showMenu(ctx, ev.UserID, MsgNoEntriesYet)
	default:
		r.showMenu(ctx, ev.UserID, MsgMainMenuHint)
	}
}

func (r *Router) enter(ctx context.Context, userID string, ft models.FlowType) {
	if err := r.engine.Enter(ctx, userID, ft); err != nil {
		slog.Error("Router: failed to enter flow", "userID", userID, "flow", ft, "error", err)
		r.say(ctx, userID, flow.MsgGenericError)
	}
}

func (r *Router) reset(ctx context.Context, userID string) {
	if r.engine.Reset(ctx, userID) {
		slog.Debug("Router: flow reset by command", "userID", userID)
	}
}

func (r *Router) say(ctx context.Context, userID, text string) {
	if err := r.display.Display(ctx, userID, text); err != nil {
		slog.Warn("Router: display failed", "userID", userID, "error", err)
	}
}

func (r *Router) showMenu(ctx context.Context, userID, text string) {
	if err := r.display.DisplayWithOptions(ctx, userID, text, models.MainMenuOptions); err != nil {
		slog.Warn("Router: display failed", "userID", userID, "error", err)
	}
}

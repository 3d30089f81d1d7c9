// Package api bootstraps JournalPipe and serves its HTTP endpoints.
//
// Run wires the state directory lock, entry store, language model, flow
// engine, chat transport, router and maintenance scheduler together, then
// serves health, stats and the Twilio webhook until SIGINT or SIGTERM.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/flow"
	"github.com/BTreeMap/JournalPipe/internal/genai"
	"github.com/BTreeMap/JournalPipe/internal/insight"
	"github.com/BTreeMap/JournalPipe/internal/lockfile"
	"github.com/BTreeMap/JournalPipe/internal/messaging"
	"github.com/BTreeMap/JournalPipe/internal/scheduler"
	"github.com/BTreeMap/JournalPipe/internal/store"
	"github.com/BTreeMap/JournalPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/JournalPipe/internal/whatsapp"
)

const (
	// DefaultServerAddress is the default HTTP listen address.
	DefaultServerAddress = ":8080"
	// DefaultStateDir holds the lock file and default databases.
	DefaultStateDir = "/var/lib/journalpipe"
	// DefaultSessionIdleTTL is how long an untouched session survives.
	DefaultSessionIdleTTL = 24 * time.Hour
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Chat transports.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

// ErrUnknownTransport is returned for unsupported transport names.
var ErrUnknownTransport = errors.New("unknown transport")

// Opts holds configuration for the server and bootstrap.
type Opts struct {
	Addr           string
	StateDir       string
	Transport      string
	SessionIdleTTL time.Duration
	SweepSchedule  string
	InsightTimeout time.Duration
	Location       *time.Location
}

// Option defines a configuration option for the server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStateDir sets the state directory guarded by the lock file.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithTransport selects TransportWhatsApp or TransportTwilio.
func WithTransport(name string) Option {
	return func(o *Opts) { o.Transport = name }
}

// WithSessionIdleTTL sets how long idle sessions are kept.
func WithSessionIdleTTL(d time.Duration) Option {
	return func(o *Opts) { o.SessionIdleTTL = d }
}

// WithSweepSchedule sets the cron expression for the idle-session sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithInsightTimeout bounds each insight generation call.
func WithInsightTimeout(d time.Duration) Option {
	return func(o *Opts) { o.InsightTimeout = d }
}

// WithLocation sets the time zone used for calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

func newOpts(opts []Option) Opts {
	cfg := Opts{
		Addr:           DefaultServerAddress,
		StateDir:       DefaultStateDir,
		Transport:      TransportWhatsApp,
		SessionIdleTTL: DefaultSessionIdleTTL,
		SweepSchedule:  scheduler.DefaultSweepSchedule,
		InsightTimeout: insight.DefaultTimeout,
		Location:       time.Local,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerAddress
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportWhatsApp
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = DefaultSessionIdleTTL
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = scheduler.DefaultSweepSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

// Run starts JournalPipe and blocks until it receives SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := newOpts(apiOpts)
	slog.Debug("api.Run: configuration", "addr", cfg.Addr, "state_dir", cfg.StateDir, "transport", cfg.Transport,
		"session_ttl", cfg.SessionIdleTTL, "sweep", cfg.SweepSchedule, "insight_timeout", cfg.InsightTimeout)

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open entry store: %w", err)
	}
	defer st.Close()

	insights := newInsightGenerator(genaiOpts, cfg.InsightTimeout)

	msgService, disconnect, err := newMessagingService(cfg.Transport, waOpts, twilioOpts)
	if err != nil {
		return err
	}
	defer disconnect()

	engine := flow.NewEngine(flow.NewSessionStore(), messaging.NewDisplay(msgService), st, insights,
		flow.WithLocation(cfg.Location))
	server := NewServer(msgService, engine, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx)
}

// newInsightGenerator builds the insight generator. Without an API key the
// bot still runs and insight requests fail with an apology.
func newInsightGenerator(genaiOpts []genai.Option, timeout time.Duration) *insight.Generator {
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("GenAI client unavailable, insights disabled", "error", err)
		return insight.NewGenerator(nil, insight.WithTimeout(timeout))
	}
	slog.Info("GenAI client initialized", "model", client.Model())
	return insight.NewGenerator(client, insight.WithTimeout(timeout))
}

// newMessagingService connects the configured transport. The returned func
// releases the transport connection.
func newMessagingService(transport string, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) (messaging.Service, func(), error) {
	switch transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		slog.Info("Using Twilio WhatsApp transport")
		return messaging.NewTwilioService(client), func() {}, nil
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		slog.Info("Using whatsmeow WhatsApp transport")
		return messaging.NewWhatsAppService(client), client.Disconnect, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
	}
}

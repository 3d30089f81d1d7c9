package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/flow"
	"github.com/BTreeMap/JournalPipe/internal/messaging"
	"github.com/BTreeMap/JournalPipe/internal/scheduler"
)

// Server owns the chat transport, router, sweep job and HTTP listener.
type Server struct {
	cfg        Opts
	msgService messaging.Service
	engine     *flow.Engine
	router     *messaging.Router
	sched      *scheduler.Scheduler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer creates a Server dispatching msgService traffic into engine.
func NewServer(msgService messaging.Service, engine *flow.Engine, opts ...Option) *Server {
	cfg := newOpts(opts)
	s := &Server{
		cfg:        cfg,
		msgService: msgService,
		engine:     engine,
		router:     messaging.NewRouter(engine, msgService, messaging.NewDisplay(msgService)),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	if tw, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("/twilio/webhook", tw.TwilioWebhookHandler)
	}
	return mux
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Start brings up the transport, router, sweep job and HTTP listener. The
// returned channel receives the listener's terminal error, if any.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	sched := scheduler.NewScheduler()
	sweep := scheduler.SessionSweep(s.engine.Sessions(), s.cfg.SessionIdleTTL, nil)
	prune := func() {
		if n := s.router.PruneDuplicates(messaging.DefaultDedupWindow); n > 0 {
			slog.Debug("Pruned inbound message IDs", "count", n)
		}
	}
	if _, err := sched.AddJob(s.cfg.SweepSchedule, func() { sweep(); prune() }); err != nil {
		sched.Stop()
		return nil, err
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		sched.Stop()
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.msgService.Start(runCtx); err != nil {
		cancel()
		sched.Stop()
		ln.Close()
		return nil, fmt.Errorf("failed to start messaging service: %w", err)
	}
	s.router.Start(runCtx)

	done := make(chan struct{})
	go s.drainReceipts(done)

	s.mu.Lock()
	s.listener, s.cancel, s.sched, s.done = ln, cancel, sched, done
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("JournalPipe API listening", "addr", ln.Addr().String(), "transport", s.cfg.Transport)
	return errCh, nil
}

// drainReceipts logs delivery receipts so the transport never blocks on them.
func (s *Server) drainReceipts(done chan struct{}) {
	defer close(done)
	for receipt := range s.msgService.Receipts() {
		slog.Debug("Message receipt", "to", receipt.To, "status", receipt.Status, "time", receipt.Time)
	}
}

// Shutdown stops accepting HTTP requests, stops the transport and waits for
// in-flight user events to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, sched, done := s.cancel, s.sched, s.done
	s.mu.Unlock()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if sched != nil {
		sched.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if err := s.msgService.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("messaging stop: %w", err))
	}

	waited := make(chan struct{})
	go func() {
		s.router.Wait()
		if done != nil {
			<-done
		}
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for workers: %w", ctx.Err()))
	}
	slog.Info("JournalPipe API stopped")
	return errors.Join(errs...)
}

// Serve runs the server until ctx is cancelled or the listener fails, then
// shuts down within DefaultShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh, err := s.Start(ctx)
	if err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			slog.Error("HTTP server failed", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Package insight turns journal text into reflective insights using a chat model.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/genai"
	"github.com/BTreeMap/JournalPipe/internal/models"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// ErrGeneration is matched by every GenerationError via errors.Is.
var ErrGeneration = errors.New("insight generation failed")

// GenerationError reports a failed insight request. The cause is for logs only.
type GenerationError struct {
	Mode models.InsightMode
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("insight generation failed (%s): %v", e.Mode, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrGeneration) true for any GenerationError.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// Completer is the slice of the genai client the generator needs.
type Completer interface {
	Generate(ctx context.Context, req genai.Request) (string, error)
}

// Generator builds prompts per insight mode and calls the model.
type Generator struct {
	completer Completer
	timeout   time.Duration
}

// Opts holds configuration options for the Generator.
type Opts struct {
	Timeout time.Duration
}

// Option defines a configuration option for the Generator.
type Option func(*Opts)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// NewGenerator creates a Generator backed by completer.
func NewGenerator(completer Completer, opts ...Option) *Generator {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{completer: completer, timeout: cfg.Timeout}
}

// Generate returns insight text for the given mode. Every failure is a *GenerationError.
func (g *Generator) Generate(ctx context.Context, mode models.InsightMode, text string) (string, error) {
	if !models.IsValidInsightMode(mode) {
		slog.Warn("Generator.Generate: unsupported insight mode", "mode", mode)
		return "", &GenerationError{Mode: mode, Err: models.ErrInvalidInsightMode}
	}
	req, err := buildRequest(mode, text)
	if err != nil {
		return "", &GenerationError{Mode: mode, Err: err}
	}
	if g.completer == nil {
		return "", &GenerationError{Mode: mode, Err: errors.New("no language model configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := g.completer.Generate(ctx, req)
	if err != nil {
		slog.Error("Generator.Generate: model call failed", "mode", mode, "error", err, "elapsed", time.Since(start))
		return "", &GenerationError{Mode: mode, Err: err}
	}
	if out == "" {
		slog.Warn("Generator.Generate: empty model output", "mode", mode)
		return "", &GenerationError{Mode: mode, Err: genai.ErrEmptyResponse}
	}
	slog.Debug("Generator.Generate: insights generated", "mode", mode, "elapsed", time.Since(start), "length", len(out))
	return out, nil
}

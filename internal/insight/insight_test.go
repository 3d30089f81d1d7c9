package insight

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/genai"
	"github.com/BTreeMap/JournalPipe/internal/models"
)

type mockCompleter struct {
	out     string
	err     error
	last    genai.Request
	blockOn bool
}

func (m *mockCompleter) Generate(ctx context.Context, req genai.Request) (string, error) {
	m.last = req
	if m.blockOn {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.out, m.err
}

func TestGenerateEntryMode(t *testing.T) {
	mock := &mockCompleter{out: "You seem rested."}
	g := NewGenerator(mock)

	out, err := g.Generate(context.Background(), models.InsightModeEntry, "Slept nine hours.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "You seem rested." {
		t.Errorf("out = %q", out)
	}
	if mock.last.MaxTokens != 900 || mock.last.Temperature != 0.7 {
		t.Errorf("entry params = %d/%v, want 900/0.7", mock.last.MaxTokens, mock.last.Temperature)
	}
	if !strings.Contains(mock.last.UserPrompt, "Slept nine hours.") {
		t.Error("user prompt should contain the entry text")
	}
	for _, section := range []string{"Key Observations", "Potential Patterns", "Actionable Steps", "Further Thoughts", "Questions"} {
		if !strings.Contains(mock.last.SystemPrompt, section) {
			t.Errorf("system prompt missing section %q", section)
		}
	}
}

func TestGenerateOverviewMode(t *testing.T) {
	mock := &mockCompleter{out: "Patterns."}
	g := NewGenerator(mock)

	if _, err := g.Generate(context.Background(), models.InsightModeOverview, "a\n\nb"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if mock.last.SystemPrompt != "You are an AI assistant that provides insights based on journal entries." {
		t.Errorf("unexpected overview system prompt: %q", mock.last.SystemPrompt)
	}
	if mock.last.UserPrompt != "Please provide insights and patterns based on these journal entries:\n\na\n\nb" {
		t.Errorf("unexpected overview user prompt: %q", mock.last.UserPrompt)
	}
	if mock.last.MaxTokens != 500 || mock.last.Temperature != 0.3 {
		t.Errorf("overview params = %d/%v, want 500/0.3", mock.last.MaxTokens, mock.last.Temperature)
	}
}

func TestGenerateErrorsAreGenerationErrors(t *testing.T) {
	cause := errors.New("upstream 503")
	tests := []struct {
		name string
		gen  *Generator
		mode models.InsightMode
	}{
		{"model failure", NewGenerator(&mockCompleter{err: cause}), models.InsightModeEntry},
		{"empty output", NewGenerator(&mockCompleter{out: ""}), models.InsightModeOverview},
		{"unknown mode", NewGenerator(&mockCompleter{out: "x"}), models.InsightMode("poem")},
		{"no completer", NewGenerator(nil), models.InsightModeEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gen.Generate(context.Background(), tt.mode, "text")
			if !errors.Is(err, ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
			var ge *GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("expected *GenerationError, got %T", err)
			}
		})
	}

	_, err := NewGenerator(&mockCompleter{err: cause}).Generate(context.Background(), models.InsightModeEntry, "x")
	if !errors.Is(err, cause) {
		t.Error("GenerationError should unwrap to its cause")
	}
}

func TestGenerateRejectsUnknownModeBeforeModelCall(t *testing.T) {
	mock := &mockCompleter{out: "x"}
	_, err := NewGenerator(mock).Generate(context.Background(), models.InsightMode("poem"), "text")
	if !errors.Is(err, models.ErrInvalidInsightMode) {
		t.Fatalf("expected ErrInvalidInsightMode, got %v", err)
	}
	if mock.last.SystemPrompt != "" || mock.last.UserPrompt != "" {
		t.Errorf("model should not be called for unknown mode, got %+v", mock.last)
	}
}

func TestGenerateTimeout(t *testing.T) {
	g := NewGenerator(&mockCompleter{blockOn: true}, WithTimeout(10*time.Millisecond))
	_, err := g.Generate(context.Background(), models.InsightModeEntry, "x")
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrGeneration) {
		t.Errorf("expected deadline exceeded generation error, got %v", err)
	}
}

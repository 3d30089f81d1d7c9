// Package genai provides GenAI-enhanced operations using OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default configuration constants
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-2024-05-13"
	// DefaultTemperature is used when a request does not override it.
	DefaultTemperature = 0.7
	// DefaultMaxTokens is used when a request does not override it.
	DefaultMaxTokens = 900
	// DefaultMaxRetries bounds attempts for rate-limit and server errors.
	DefaultMaxRetries = 3
)

// Error variables for better error handling and testability
var (
	ErrAPIKeyRequired    = errors.New("OpenAI API key is required")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyResponse     = errors.New("empty response content")
)

// defaultRetryDelays are waits between attempts, indexed by attempt number.
var defaultRetryDelays = []time.Duration{2 * time.Second, 10 * time.Second}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openAIChatService adapts the SDK's completion service to chatService.
type openAIChatService struct {
	completions *openai.ChatCompletionService
}

func (s *openAIChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI ChatCompletion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
	retryDelays []time.Duration
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey    string
	Model     string
	DebugMode bool
	StateDir  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey overrides the API key used for OpenAI requests.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithDebugMode enables writing every request and response to <stateDir>/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
	}
}

// WithStateDir sets the directory debug captures are written under.
func WithStateDir(dir string) Option {
	return func(o *Opts) {
		o.StateDir = dir
	}
}

// NewClient initializes a new GenAI client. The API key comes from options,
// falling back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	slog.Debug("GenAI client created", "model", model, "debugMode", cfg.DebugMode)
	return &Client{
		chat:        &openAIChatService{completions: &cli.Chat.Completions},
		model:       model,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
		retryDelays: defaultRetryDelays,
	}, nil
}

// Model returns the configured chat model.
func (c *Client) Model() string {
	return c.model
}

// Request describes a single system+user completion call.
// Zero MaxTokens or Temperature fall back to the client defaults.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Generate runs req with its per-call token and temperature overrides.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	return c.complete(ctx, "Generate", req)
}

func (c *Client) complete(ctx context.Context, method string, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}

	slog.Debug("GenAI request", "method", method, "model", c.model, "maxTokens", maxTokens, "temperature", temperature)
	resp, err := c.createWithRetry(ctx, params)
	c.writeDebugLog(method, params, resp, err)
	if err != nil {
		slog.Error("GenAI request failed", "method", method, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI returned no choices", "method", method)
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug("GenAI request succeeded", "method", method, "length", len(content))
	return content, nil
}

// createWithRetry retries rate-limit and server errors with increasing waits.
func (c *Client) createWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	var lastErr error
	for attempt := 0; attempt < DefaultMaxRetries; attempt++ {
		resp, err := c.chat.Create(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt >= len(c.retryDelays) || attempt == DefaultMaxRetries-1 {
			break
		}
		slog.Warn("GenAI transient error, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return openai.ChatCompletion{}, ctx.Err()
		case <-time.After(c.retryDelays[attempt]):
		}
	}
	return openai.ChatCompletion{}, lastErr
}

// isRetryable reports whether err looks like a rate limit or server-side failure.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "internal server error")
}

// debugLogEntry is the JSON document written per call in debug mode.
type debugLogEntry struct {
	Timestamp string      `json:"timestamp"`
	Method    string      `json:"method"`
	Model     string      `json:"model"`
	Params    interface{} `json:"params"`
	Response  interface{} `json:"response"`
	Error     string      `json:"error,omitempty"`
}

// writeDebugLog writes a request/response capture under <stateDir>/debug when debug mode is on.
func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	debugDir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Warn("GenAI debug directory creation failed", "error", err, "dir", debugDir)
		return
	}

	now := time.Now()
	entry := debugLogEntry{
		Timestamp: now.Format(time.RFC3339Nano),
		Method:    method,
		Model:     c.model,
		Params:    params,
		Response:  resp,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(debugDir, name), data, 0644); err != nil {
		slog.Warn("GenAI debug write failed", "error", err)
	}
}

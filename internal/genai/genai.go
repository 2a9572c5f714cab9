// Package genai provides text generation for triage advice and the SMS/voice
// assistant, backed by an OpenAI-compatible chat API or by Gemini.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTemperature matches the tone the assistant has always used.
	DefaultTemperature = 0.7
	// DefaultMaxTokens keeps replies short enough for SMS and USSD screens.
	DefaultMaxTokens = 200
)

// ErrNoChoicesReturned is returned when the provider answers without any content.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Generator produces free text from a system and a user prompt.
type Generator interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration shared by the generation clients.
type Opts struct {
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint, e.g. Cohere's compatibility API
	Model       string
	Temperature float64
	MaxTokens   int
	DebugMode   bool
	StateDir    string
}

// Option configures a generation client.
type Option func(*Opts)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the OpenAI client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// WithMaxTokens caps the length of generated replies.
func WithMaxTokens(tokens int) Option {
	return func(o *Opts) { o.MaxTokens = tokens }
}

// WithDebugMode writes every request and response under StateDir/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) { o.DebugMode = enabled }
}

// WithStateDir sets the directory used for debug logs.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK's completion service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client generates text through an OpenAI-compatible chat completion API.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient creates a Client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := buildOpts(opts)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("Client.NewClient: OpenAI-compatible client ready", "model", cfg.Model, "baseURL", cfg.BaseURL, "debug", cfg.DebugMode)

	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// GeneratePrompt generates a response without a deadline.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext generates a response to userPrompt. It makes a single
// attempt and honours ctx's deadline.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("Client.GeneratePromptWithContext: completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	c.logDebug("GeneratePromptWithContext", params, resp)

	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gemini "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no Gemini model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// contentGenerator is the part of *gemini.GenerativeModel the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...gemini.Part) (*gemini.GenerateContentResponse, error)
}

// GeminiClient generates text through Google's Gemini API.
type GeminiClient struct {
	model     contentGenerator
	modelName string
	closer    func() error
}

// NewGeminiClient creates a GeminiClient. The API key falls back to GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	cfg := buildOpts(opts)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := gemini.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(float32(cfg.Temperature))
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}
	slog.Debug("GeminiClient.NewGeminiClient: client ready", "model", cfg.Model)

	return &GeminiClient{model: model, modelName: cfg.Model, closer: client.Close}, nil
}

// GeneratePromptWithContext sends the system and user prompts as one turn and
// joins the text parts of the first candidate.
func (g *GeminiClient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, gemini.Text(systemPrompt), gemini.Text(userPrompt))
	if err != nil {
		slog.Error("GeminiClient.GeneratePromptWithContext: generation failed", "model", g.modelName, "error", err)
		return "", fmt.Errorf("gemini generate error: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoChoicesReturned
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(gemini.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", ErrNoChoicesReturned
	}
	return sb.String(), nil
}

// Close releases the underlying Gemini client.
func (g *GeminiClient) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

package external

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"sitewatch/internal/content"
	"sitewatch/internal/types"
)

// chatCompleter is the subset of *openai.Client used by OpenAIGenerator.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig holds the configuration for creating an OpenAIGenerator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      *slog.Logger
}

// OpenAIGenerator produces alert text with the chat completions API.
// Request deadlines come from the caller's context.
type OpenAIGenerator struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float32
	logger      *slog.Logger
}

// NewOpenAIGenerator creates an OpenAIGenerator backed by the official API
// (or BaseURL, when set).
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newOpenAIGenerator(openai.NewClientWithConfig(oc), cfg)
}

func newOpenAIGenerator(client chatCompleter, cfg OpenAIConfig) *OpenAIGenerator {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGenerator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temp,
		logger:      logger,
	}
}

// Generate returns the first completion choice for p. An empty choice list
// or blank text is an error so callers can fall back.
func (g *OpenAIGenerator) Generate(ctx context.Context, p content.Prompt) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System()},
			{Role: openai.ChatMessageRoleUser, Content: p.User()},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return "", types.NewAppError(types.ErrCodeUpstreamRateLimited, "openai rate limit exceeded", err)
		}
		return "", types.NewAppError(types.ErrCodeUpstreamContent, "openai completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamContent, "openai returned no choices", nil)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamContent, "openai returned empty content", nil)
	}

	g.logger.DebugContext(ctx, "generated alert content",
		"model", g.model,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return text, nil
}

var _ content.Generator = (*OpenAIGenerator)(nil)

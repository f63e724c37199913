// Package llm provides text-generation clients and the query generator that
// turns their output into query proposals and answers for the chat pipeline.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// TextClient generates a completion for a single prompt.
// Use this interface for dependency injection to enable mocking in tests.
type TextClient interface {
	// GenerateResponse returns the model's text for prompt.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Config holds configuration for creating a TextClient.
type Config struct {
	Provider  string // openai, gemini, anthropic
	Endpoint  string // Base URL for OpenAI-compatible endpoints
	Model     string
	APIKey    string
	MaxTokens int
}

// NewTextClient creates the client for cfg.Provider.
func NewTextClient(ctx context.Context, cfg *Config, logger *zap.Logger) (TextClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var (
		client TextClient
		err    error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		client, err = NewOpenAIClient(cfg, logger)
	case ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg, logger)
	case ProviderAnthropic:
		client, err = NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// OpenAIClient talks to OpenAI-compatible chat completion endpoints.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient creates an OpenAI-compatible client. An empty endpoint
// uses the public OpenAI API.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("llm.openai"),
	}, nil
}

// GenerateResponse implements TextClient.
func (c *OpenAIClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeResponse, "no choices in response", false, nil)
	}

	c.logger.Debug("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// GetModel implements TextClient.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

var _ TextClient = (*OpenAIClient)(nil)

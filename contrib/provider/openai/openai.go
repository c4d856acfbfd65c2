// Package openai provides an llm.Client backed by the official OpenAI SDK.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
)

// Config holds OpenAI client configuration.
type Config struct {
	APIKey      string
	BaseURL     string // Override for OpenAI-compatible endpoints
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns configuration suited to grading and rewriting calls:
// a small model, modest token budget.
func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.2,
	}
}

// WithAPIKey sets the API key.
func (cfg *Config) WithAPIKey(key string) *Config {
	cfg.APIKey = key
	return cfg
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithModel sets the model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// Client is an OpenAI-backed llm.Client.
type Client struct {
	cfg    *Config
	client openai.Client
}

var _ llm.Client = (*Client)(nil)

// New creates the client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, client: openai.NewClient(opts...)}
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case message.RoleUser:
			converted = append(converted, openai.UserMessage(msg.Content))
		case message.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: converted,
		Model:    openai.ChatModel(c.cfg.Model),
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(c.cfg.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content), nil
}

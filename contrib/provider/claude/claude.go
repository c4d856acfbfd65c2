// Package claude provides an llm.Client backed by the official Anthropic SDK.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
)

// Config holds Claude client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns settings suited to answer generation, where a
// larger model pays for itself in citation accuracy.
func DefaultConfig() *Config {
	return &Config{
		Model:       "claude-3-5-sonnet-20241022",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// WithAPIKey sets the API key.
func (cfg *Config) WithAPIKey(key string) *Config {
	cfg.APIKey = key
	return cfg
}

// WithBaseURL points the client at a proxy endpoint.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithModel sets the model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// Client is a Claude-backed llm.Client.
type Client struct {
	cfg    *Config
	client anthropic.Client
}

var _ llm.Client = (*Client)(nil)

// New creates the client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, client: anthropic.NewClient(opts...)}
}

// Generate implements llm.Client. The Anthropic API takes system prompts
// out of band, so system messages are collected into params.System while
// the rest form the conversation turns.
func (c *Client) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Content)
		case message.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		Messages:  turns,
		MaxTokens: c.cfg.MaxTokens,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n")},
		}
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(c.cfg.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude message: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("claude returned no text content")
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
}

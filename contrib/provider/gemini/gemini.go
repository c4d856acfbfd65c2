// Package gemini provides an llm.Client backed by the Google generative AI SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
)

// Config holds Gemini client configuration.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns settings suited to grading and rewriting, where
// call volume matters more than model size.
func DefaultConfig() *Config {
	return &Config{
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// WithAPIKey sets the API key.
func (cfg *Config) WithAPIKey(key string) *Config {
	cfg.APIKey = key
	return cfg
}

// WithModel sets the model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// Client is a Gemini-backed llm.Client.
type Client struct {
	cfg    *Config
	client *genai.Client
}

var _ llm.Client = (*Client)(nil)

// New creates the client. The context governs credential setup only.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Close releases the underlying API connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate implements llm.Client. System messages become the model's
// system instruction, prior turns become chat history, and the final
// user message is sent as the prompt.
func (c *Client) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	var system []string
	var turns []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Content)
		case message.RoleUser:
			turns = append(turns, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case message.RoleAssistant:
			turns = append(turns, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return nil, fmt.Errorf("conversation must end with a user message")
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))},
		}
	}
	if c.cfg.Temperature > 0 {
		model.SetTemperature(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(c.cfg.MaxTokens)
	}

	last := turns[len(turns)-1]
	chat := model.StartChat()
	chat.History = turns[:len(turns)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini message: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("gemini returned no text content")
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
}

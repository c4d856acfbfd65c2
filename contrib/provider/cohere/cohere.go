// Package cohere provides an llm.Client for the Cohere chat API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
)

const apiURL = "https://api.cohere.com/v2/chat"

// Config holds Cohere client configuration.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns default Cohere configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:       "command-r",
		MaxTokens:   2048,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
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

// Client is a Cohere-backed llm.Client.
type Client struct {
	cfg  *Config
	http *http.Client
}

var _ llm.Client = (*Client)(nil)

// New creates the client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Model == "" {
		cfg.Model = "command-r"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("cohere API key not configured")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	converted := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem, message.RoleUser, message.RoleAssistant:
			converted = append(converted, chatMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    converted,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cohere request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build cohere request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cohere response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode cohere response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("cohere API error: %s", parsed.Error.Message)
		}
		return nil, fmt.Errorf("cohere API error: status %d", resp.StatusCode)
	}

	var text string
	for _, block := range parsed.Message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("cohere returned no text content")
	}
	return message.NewMessage(message.RoleAssistant, text), nil
}

// Package openai summarizes regulation passages with an OpenAI chat model.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/harborlight/navqa/contrib/provider/openai"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/prompt"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/summarizer"
)

const systemPrompt = "You summarize maritime regulation text. Answer in the input language and respond with JSON only."

var passagePrompt = prompt.MustTemplate("summarize_passage", `Summarize the following regulation text:
Title: {{.Title}}
Provision: {{.Provision}}
Content:
{{.Content}}

Requirements:
1) Keep the summary to roughly {{.Budget}} tokens
2) Extract 3-5 key points (listed by number)
3) Output JSON only: {"summary":"...","key_points":["kp1","kp2"]}
`)

// Summarizer condenses passages through a chat model, eight at a time.
type Summarizer struct {
	client      llm.Client
	tokenBudget int
	concurrency int
}

// Option customises the summarizer.
type Option func(*Summarizer)

// WithClient swaps the chat backend (useful for tests or other providers).
func WithClient(client llm.Client) Option {
	return func(s *Summarizer) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTokenBudget sets the approximate length of each summary.
func WithTokenBudget(tokens int) Option {
	return func(s *Summarizer) {
		if tokens > 0 {
			s.tokenBudget = tokens
		}
	}
}

// WithConcurrency caps parallel summarization calls.
func WithConcurrency(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates an OpenAI-backed passage summarizer.
func New(apiKey string, opts ...Option) (*Summarizer, error) {
	s := &Summarizer{
		tokenBudget: 120,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		if apiKey == "" {
			return nil, fmt.Errorf("%w: openai API key is required", apperrors.ErrInvalidInput)
		}
		s.client = openai.New(openai.DefaultConfig().WithAPIKey(apiKey).WithModel("gpt-4o-mini"))
	}
	return s, nil
}

// SummarizePassages implements summarizer.Summarizer. Passages are processed
// concurrently but results keep input order; the first error wins.
func (s *Summarizer) SummarizePassages(ctx context.Context, passages []document.Passage) ([]summarizer.Summary, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	out := make([]summarizer.Summary, len(passages))
	sem := make(chan struct{}, s.concurrency)
	errc := make(chan error, 1)
	var wg sync.WaitGroup

	for i := range passages {
		i := i
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			sum, err := s.summarizeOne(ctx, passages[i])
			if err != nil {
				select {
				case errc <- err:
				default:
				}
				return
			}
			out[i] = *sum
		}()
	}

	wg.Wait()

	select {
	case e := <-errc:
		return nil, e
	default:
	}
	return out, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, p document.Passage) (*summarizer.Summary, error) {
	title := ""
	if metaTitle, ok := p.Metadata["title"].(string); ok {
		title = metaTitle
	} else if p.Locator != "" {
		title = p.Locator
	}

	rendered, err := passagePrompt.Render(map[string]any{
		"Title":     title,
		"Provision": p.Locator,
		"Content":   p.Content,
		"Budget":    s.tokenBudget,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Generate(ctx, []*message.Message{
		message.NewMessage(message.RoleSystem, systemPrompt),
		message.NewMessage(message.RoleUser, rendered),
	})
	if err != nil {
		return nil, fmt.Errorf("summarize passage %s: %w", p.ID, err)
	}

	text := extractJSONBlock(resp.Content)
	if text == "" {
		return nil, fmt.Errorf("empty summary for passage %s", p.ID)
	}

	var js struct {
		Summary   string   `json:"summary"`
		KeyPoints []string `json:"key_points"`
	}
	if err := json.Unmarshal([]byte(text), &js); err != nil {
		return nil, fmt.Errorf("parse summary for passage %s: %w", p.ID, err)
	}
	return &summarizer.Summary{
		PassageID: p.ID,
		Text:      js.Summary,
		KeyPoints: js.KeyPoints,
	}, nil
}

func extractJSONBlock(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
		if strings.HasPrefix(strings.ToLower(trimmed), "json") {
			trimmed = strings.TrimSpace(trimmed[4:])
		}
	}
	return strings.TrimSpace(trimmed)
}

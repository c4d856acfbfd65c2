package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/prompt"
)

// Retriever is the external search collaborator. Topic hints are advisory;
// implementations may ignore them. A returned error is fatal for the request.
type Retriever interface {
	Search(ctx context.Context, query string, topicHints []string, limit int) ([]Evidence, error)
}

// Generator produces the final answer from accepted evidence. A returned
// error is fatal for the request.
type Generator interface {
	Generate(ctx context.Context, query string, evidence []Evidence) (*Draft, error)
}

// LLMGenerator is the default Generator: it composes a citation-backed answer
// from the evidence via the configured chat backend.
type LLMGenerator struct {
	backend llm.Client
	prompt  string
}

const defaultGeneratorPrompt = `You answer questions about maritime regulations using only the supplied evidence passages.
Guidelines:
1. Attribute every factual statement with [id] citations matching the passage identifiers.
2. When the evidence conflicts, say so before concluding.
3. If the evidence cannot answer the question, state what is missing instead of guessing.`

// NewLLMGenerator builds the default generator around a chat backend.
func NewLLMGenerator(backend llm.Client) *LLMGenerator {
	return &LLMGenerator{backend: backend, prompt: defaultGeneratorPrompt}
}

// WithPrompt overrides the system prompt and returns the generator for chaining.
func (g *LLMGenerator) WithPrompt(prompt string) *LLMGenerator {
	if strings.TrimSpace(prompt) != "" {
		g.prompt = prompt
	}
	return g
}

// Generate composes the answer and extracts which evidence items it cited.
func (g *LLMGenerator) Generate(ctx context.Context, query string, evidence []Evidence) (*Draft, error) {
	if g.backend == nil {
		return nil, fmt.Errorf("generator backend is not configured")
	}

	userPrompt := prompt.NewBuilder().
		AddSection("Question", query).
		AddSection("Evidence", formatEvidence(evidence)).
		Build()
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, g.prompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}

	resp, err := g.backend.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	return &Draft{
		Text:      text,
		Citations: citedIDs(text, evidence),
	}, nil
}

// citedIDs returns the evidence IDs referenced as [id] in the answer, in
// evidence order.
func citedIDs(text string, evidence []Evidence) []string {
	var cited []string
	for _, ev := range evidence {
		if ev.ID == "" {
			continue
		}
		if strings.Contains(text, "["+ev.ID+"]") {
			cited = append(cited, ev.ID)
		}
	}
	return cited
}

func formatEvidence(evidence []Evidence) string {
	if len(evidence) == 0 {
		return "No evidence was retrieved."
	}
	var b strings.Builder
	for _, ev := range evidence {
		header := ev.ID
		if ev.Source != "" {
			header += " " + ev.Source
		}
		if ev.Locator != "" {
			header += " " + ev.Locator
		}
		fmt.Fprintf(&b, "[%s]\n%s\n---\n", header, ev.Text)
	}
	return b.String()
}

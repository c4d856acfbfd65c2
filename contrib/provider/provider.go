// Package provider selects an llm.Client implementation by name, so the
// backing model for each pipeline stage can be chosen from configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/harborlight/navqa/contrib/provider/claude"
	"github.com/harborlight/navqa/contrib/provider/cohere"
	"github.com/harborlight/navqa/contrib/provider/gemini"
	"github.com/harborlight/navqa/contrib/provider/groq"
	"github.com/harborlight/navqa/contrib/provider/openai"
	"github.com/harborlight/navqa/llm"
)

// New returns an llm.Client for the named provider. Model may be empty
// to take the provider's default.
func New(ctx context.Context, name, apiKey, model string) (llm.Client, error) {
	switch name {
	case "openai":
		cfg := openai.DefaultConfig().WithAPIKey(apiKey)
		if model != "" {
			cfg = cfg.WithModel(model)
		}
		return openai.New(cfg), nil
	case "claude":
		cfg := claude.DefaultConfig().WithAPIKey(apiKey)
		if model != "" {
			cfg = cfg.WithModel(model)
		}
		return claude.New(cfg), nil
	case "gemini":
		cfg := gemini.DefaultConfig().WithAPIKey(apiKey)
		if model != "" {
			cfg = cfg.WithModel(model)
		}
		return gemini.New(ctx, cfg)
	case "groq":
		cfg := groq.DefaultConfig().WithAPIKey(apiKey)
		if model != "" {
			cfg = cfg.WithModel(model)
		}
		return groq.New(cfg), nil
	case "cohere":
		cfg := cohere.DefaultConfig().WithAPIKey(apiKey)
		if model != "" {
			cfg = cfg.WithModel(model)
		}
		return cohere.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// Package enricher provides a middleware that injects a standing system
// prompt, used to pin provider clients to the maritime-regulation register
// without touching each caller's prompt assembly.
package enricher

import (
	"context"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/middleware"
)

// SystemPrompt prepends the given system message when the conversation has
// none of its own. Conversations that already carry a system prompt pass
// through untouched.
func SystemPrompt(prompt string) middleware.Middleware {
	return func(next llm.Client) llm.Client {
		return middleware.GenerateFunc(func(ctx context.Context, messages []*message.Message) (*message.Message, error) {
			if prompt == "" || hasSystem(messages) {
				return next.Generate(ctx, messages)
			}
			enriched := make([]*message.Message, 0, len(messages)+1)
			enriched = append(enriched, message.NewMessage(message.RoleSystem, prompt))
			enriched = append(enriched, messages...)
			return next.Generate(ctx, enriched)
		})
	}
}

func hasSystem(messages []*message.Message) bool {
	for _, msg := range messages {
		if msg != nil && msg.Role == message.RoleSystem {
			return true
		}
	}
	return false
}

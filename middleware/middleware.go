// Package middleware decorates llm.Client implementations with cross-cutting
// behaviour: logging, rate limiting, validation, retries. Each middleware
// wraps a client and returns a client, so concerns compose without the
// providers knowing about them.
package middleware

import (
	"context"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
)

// Middleware wraps a client with additional behaviour.
type Middleware func(llm.Client) llm.Client

// Wrap applies middlewares so the first one listed sees the request first.
func Wrap(client llm.Client, mws ...Middleware) llm.Client {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			client = mws[i](client)
		}
	}
	return client
}

// GenerateFunc adapts a function into an llm.Client, which is how most
// middlewares intercept the call.
type GenerateFunc func(ctx context.Context, messages []*message.Message) (*message.Message, error)

// Generate implements llm.Client.
func (f GenerateFunc) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	return f(ctx, messages)
}

// Package llm defines the narrow client contract the engine and its
// collaborators use to talk to language-model providers. Concrete
// implementations live under contrib/provider.
package llm

import (
	"context"

	"github.com/harborlight/navqa/message"
)

// Client is the capability interface for a chat-completion backend.
// Implementations must be safe for concurrent use.
type Client interface {
	// Generate produces a single assistant message for the given conversation.
	Generate(ctx context.Context, messages []*message.Message) (*message.Message, error)
}

// ClientFunc adapts a plain function to the Client interface; handy in tests.
type ClientFunc func(ctx context.Context, messages []*message.Message) (*message.Message, error)

// Generate implements Client.
func (f ClientFunc) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	return f(ctx, messages)
}

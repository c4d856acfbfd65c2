// Package validator provides middlewares that check conversations before
// they reach a provider and filter responses on the way back.
package validator

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/middleware"
)

// Request validates the outgoing conversation: it must be non-empty, every
// message needs content, and the total size stays under maxChars when the
// cap is positive.
func Request(maxChars int) middleware.Middleware {
	return func(next llm.Client) llm.Client {
		return middleware.GenerateFunc(func(ctx context.Context, messages []*message.Message) (*message.Message, error) {
			if len(messages) == 0 {
				return nil, fmt.Errorf("%w: conversation is empty", apperrors.ErrInvalidInput)
			}
			total := 0
			for i, msg := range messages {
				if msg == nil || strings.TrimSpace(msg.Content) == "" {
					return nil, fmt.Errorf("%w: message %d has no content", apperrors.ErrInvalidInput, i)
				}
				total += len(msg.Content)
			}
			if maxChars > 0 && total > maxChars {
				return nil, fmt.Errorf("%w: conversation is %d chars, limit %d", apperrors.ErrInvalidInput, total, maxChars)
			}
			return next.Generate(ctx, messages)
		})
	}
}

// Response applies a filter to successful responses; the filter may reject
// the response by returning an error or normalise it in place.
func Response(filter func(*message.Message) error) middleware.Middleware {
	return func(next llm.Client) llm.Client {
		return middleware.GenerateFunc(func(ctx context.Context, messages []*message.Message) (*message.Message, error) {
			resp, err := next.Generate(ctx, messages)
			if err != nil {
				return nil, err
			}
			if filter != nil {
				if err := filter(resp); err != nil {
					return nil, err
				}
			}
			return resp, nil
		})
	}
}

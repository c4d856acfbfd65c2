// Package retry provides a middleware that retries failed model calls with
// exponential backoff. Transient provider errors are the common failure in
// the correction loop, and a retry here is cheaper than a whole extra
// rewrite iteration.
package retry

import (
	"context"
	"time"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/middleware"
)

// Config tunes the retry behaviour.
type Config struct {
	Attempts  int           // Total tries including the first (default 3)
	BaseDelay time.Duration // Delay before the first retry, doubled each time (default 500ms)
	// Retryable decides whether an error is worth retrying. Nil retries
	// everything except context cancellation.
	Retryable func(error) bool
}

// New creates the middleware.
func New(cfg Config) middleware.Middleware {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}

	return func(next llm.Client) llm.Client {
		return middleware.GenerateFunc(func(ctx context.Context, messages []*message.Message) (*message.Message, error) {
			var lastErr error
			delay := cfg.BaseDelay
			for attempt := 0; attempt < cfg.Attempts; attempt++ {
				if attempt > 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(delay):
					}
					delay *= 2
				}

				resp, err := next.Generate(ctx, messages)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if cfg.Retryable != nil && !cfg.Retryable(err) {
					return nil, err
				}
			}
			return nil, lastErr
		})
	}
}

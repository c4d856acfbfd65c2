// Package logger provides a middleware that logs model calls with timing.
package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/middleware"
	"github.com/harborlight/navqa/pkg/logging"
)

// New logs each request at debug level and failures at error level, with
// call duration. A nil logger uses the shared one.
func New(log *slog.Logger) middleware.Middleware {
	if log == nil {
		log = logging.WithComponent("llm")
	}
	return func(next llm.Client) llm.Client {
		return middleware.GenerateFunc(func(ctx context.Context, messages []*message.Message) (*message.Message, error) {
			log.Debug("model call", "messages", len(messages))
			start := time.Now()

			resp, err := next.Generate(ctx, messages)
			elapsed := time.Since(start)
			if err != nil {
				log.Error("model call failed", "duration_ms", elapsed.Milliseconds(), "error", err)
				return nil, err
			}
			log.Debug("model call succeeded",
				"duration_ms", elapsed.Milliseconds(),
				"response_chars", len(resp.Content),
			)
			return resp, nil
		})
	}
}

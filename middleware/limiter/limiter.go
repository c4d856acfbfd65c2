// Package limiter provides a sliding-window rate limit middleware, keeping
// grading fan-out from bursting past a provider's request quota.
package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/middleware"
)

// ErrRateLimitExceeded indicates the window's request budget is spent.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Limiter counts requests in a rolling window.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
}

// New creates a limiter allowing maxRequests per window. A zero window
// means the budget never replenishes until Reset.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{maxRequests: maxRequests, window: window}
}

// Middleware rejects calls over budget with ErrRateLimitExceeded instead
// of queueing them; the correction loop treats the failure per component
// contract.
func (l *Limiter) Middleware() middleware.Middleware {
	return func(next llm.Client) llm.Client {
		return middleware.GenerateFunc(func(ctx context.Context, messages []*message.Message) (*message.Message, error) {
			if !l.allow() {
				return nil, ErrRateLimitExceeded
			}
			return next.Generate(ctx, messages)
		})
	}
}

func (l *Limiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.window > 0 {
		cutoff := now.Add(-l.window)
		kept := l.stamps[:0]
		for _, ts := range l.stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		l.stamps = kept
	}
	if len(l.stamps) >= l.maxRequests {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Reset clears the window.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = nil
}

// Count returns the requests admitted in the current window.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stamps)
}

package crag

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State names one phase of the correction loop.
type State string

const (
	StateAnalyzing  State = "analyzing"
	StateRetrieving State = "retrieving"
	StateGrading    State = "grading"
	StateRewriting  State = "rewriting"
	StateGenerating State = "generating"
	StateVerifying  State = "verifying"
	StateDone       State = "done"
)

// TraceEvent describes one completed state transition.
type TraceEvent struct {
	State     State
	Outcome   string        // e.g. "accepted", "rewrite", "exhausted", "degraded", "failed"
	Iteration int           // Rewrite iterations consumed when the state finished
	Duration  time.Duration
	Err       error // Non-nil when the state failed
}

// TraceSink observes state transitions so an external tracer can reconstruct
// the decision path. Sinks are pure observers and must never influence
// control flow; implementations should return quickly.
type TraceSink interface {
	OnTransition(ctx context.Context, ev TraceEvent)
}

// SlogTraceSink logs each transition at debug level.
type SlogTraceSink struct {
	Logger *slog.Logger
}

// OnTransition implements TraceSink.
func (s *SlogTraceSink) OnTransition(_ context.Context, ev TraceEvent) {
	if s == nil || s.Logger == nil {
		return
	}
	attrs := []any{
		"state", string(ev.State),
		"outcome", ev.Outcome,
		"iteration", ev.Iteration,
		"duration_ms", ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}
	s.Logger.Debug("state transition", attrs...)
}

// OTelTraceSink emits one span per state transition.
type OTelTraceSink struct {
	tracer trace.Tracer
}

// NewOTelTraceSink builds a sink on the global tracer provider.
func NewOTelTraceSink() *OTelTraceSink {
	return &OTelTraceSink{tracer: otel.Tracer("navqa/crag")}
}

// OnTransition implements TraceSink. The span is backdated so its duration
// matches the state's actual execution window.
func (s *OTelTraceSink) OnTransition(ctx context.Context, ev TraceEvent) {
	if s == nil || s.tracer == nil {
		return
	}
	_, span := s.tracer.Start(ctx, "crag."+string(ev.State),
		trace.WithTimestamp(time.Now().Add(-ev.Duration)),
	)
	span.SetAttributes(
		attribute.String("crag.outcome", ev.Outcome),
		attribute.Int("crag.iteration", ev.Iteration),
	)
	if ev.Err != nil {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	}
	span.End()
}

// multiTraceSink fans transitions out to several sinks.
type multiTraceSink []TraceSink

// MultiTraceSink combines sinks; nil entries are skipped.
func MultiTraceSink(sinks ...TraceSink) TraceSink {
	var out multiTraceSink
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

func (m multiTraceSink) OnTransition(ctx context.Context, ev TraceEvent) {
	for _, sink := range m {
		sink.OnTransition(ctx, ev)
	}
}

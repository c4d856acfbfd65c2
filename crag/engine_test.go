package crag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/harborlight/navqa/message"
)

// stubClient answers every call with the same content.
type stubClient struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (s *stubClient) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return message.NewMessage(message.RoleAssistant, s.response), nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// phasedClient switches its response after a fixed number of calls; used to
// model a grading backend whose verdict improves on the second retrieval.
type phasedClient struct {
	mu        sync.Mutex
	phaseSize int
	phases    []string
	calls     int
}

func (p *phasedClient) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	p.mu.Lock()
	idx := p.calls / p.phaseSize
	p.calls++
	p.mu.Unlock()
	if idx >= len(p.phases) {
		idx = len(p.phases) - 1
	}
	return message.NewMessage(message.RoleAssistant, p.phases[idx]), nil
}

// stubRetriever replays scripted evidence sets, one per Search call.
type stubRetriever struct {
	mu      sync.Mutex
	batches [][]Evidence
	queries []string
	err     error
}

func (s *stubRetriever) Search(ctx context.Context, query string, hints []string, limit int) ([]Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.queries = append(s.queries, query)
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	if len(s.batches) > 1 {
		s.batches = s.batches[1:]
	}
	return batch, nil
}

// stubGenerator returns a fixed draft.
type stubGenerator struct {
	draft *Draft
	err   error
	calls int
	query string
}

func (s *stubGenerator) Generate(ctx context.Context, query string, evidence []Evidence) (*Draft, error) {
	s.calls++
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	return s.draft, nil
}

// recordingSink captures the transition sequence.
type recordingSink struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *recordingSink) OnTransition(_ context.Context, ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.State
	}
	return out
}

func colregsEvidence() []Evidence {
	return []Evidence{
		{ID: "colregs-lookout", Text: "Every vessel shall at all times maintain a proper look-out by sight and hearing.", Source: "COLREGs", Locator: "Rule 5"},
		{ID: "colregs-speed", Text: "Every vessel shall at all times proceed at a safe speed.", Source: "COLREGs", Locator: "Rule 6"},
	}
}

func gradeJSON(score float64) string {
	return fmt.Sprintf(`{"score": %.1f, "rationale": "states the queried rule"}`, score)
}

func TestAnswerAcceptsStrongFirstRetrieval(t *testing.T) {
	ctx := context.Background()
	retriever := &stubRetriever{batches: [][]Evidence{colregsEvidence()}}
	generator := &stubGenerator{draft: &Draft{
		Text:      "A proper look-out must be kept at all times [colregs-lookout].",
		Citations: []string{"colregs-lookout"},
	}}
	sink := &recordingSink{}

	engine, err := New(retriever, generator, Backends{
		Grader:   &stubClient{response: gradeJSON(8.5)},
		Verifier: &stubClient{response: `{"issues":[],"confidence":0.9}`},
	}, WithTraceSink(sink))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "What does Rule 5 require for look-out?"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if res.WasRewritten {
		t.Fatalf("expected no rewrite, got %+v", res.Rewrites)
	}
	if res.Iterations != 0 {
		t.Fatalf("expected 0 iterations, got %d", res.Iterations)
	}
	if res.RewrittenQuery != "" {
		t.Fatalf("expected no rewritten query, got %q", res.RewrittenQuery)
	}
	if res.Verification == nil {
		t.Fatal("expected verification to run")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}

	want := []State{StateAnalyzing, StateRetrieving, StateGrading, StateGenerating, StateVerifying, StateDone}
	got := sink.states()
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAnswerRewritesOnceOnWeakEvidence(t *testing.T) {
	ctx := context.Background()
	weak := []Evidence{
		{ID: "marpol-oil", Text: "Discharge of oil is prohibited in special areas.", Source: "MARPOL", Locator: "Annex I"},
		{ID: "marpol-garbage", Text: "Garbage disposal rules vary by distance from land.", Source: "MARPOL", Locator: "Annex V"},
	}
	retriever := &stubRetriever{batches: [][]Evidence{weak, colregsEvidence()}}
	generator := &stubGenerator{draft: &Draft{Text: "Safe speed is required at all times [colregs-speed].", Citations: []string{"colregs-speed"}}}

	grader := &phasedClient{phaseSize: 2, phases: []string{gradeJSON(4.0), gradeJSON(7.5)}}
	rewriter := &stubClient{response: "COLREGs safe speed requirement Rule 6"}

	engine, err := New(retriever, generator, Backends{
		Grader:   grader,
		Rewriter: rewriter,
		Verifier: &stubClient{response: `{"issues":[],"confidence":0.85}`},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "Compare safe speed and look-out duties"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if !res.WasRewritten {
		t.Fatal("expected rewrite to happen")
	}
	if res.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", res.Iterations)
	}
	if res.RewrittenQuery != "COLREGs safe speed requirement Rule 6" {
		t.Fatalf("unexpected rewritten query %q", res.RewrittenQuery)
	}
	if generator.query != res.RewrittenQuery {
		t.Fatalf("generation should use the rewritten query, got %q", generator.query)
	}
	if len(res.Rewrites) != 1 || res.Rewrites[0].Strategy != StrategyRewrite {
		t.Fatalf("unexpected rewrite chain %+v", res.Rewrites)
	}
}

func TestAnswerExhaustsIterationBudget(t *testing.T) {
	ctx := context.Background()
	weak := []Evidence{{ID: "stcw-rest", Text: "Watchkeeping standards for deck officers.", Source: "STCW"}}
	retriever := &stubRetriever{batches: [][]Evidence{weak}}
	generator := &stubGenerator{draft: &Draft{Text: "Watchkeeping coverage is partial [stcw-rest].", Citations: []string{"stcw-rest"}}}

	engine, err := New(retriever, generator, Backends{
		Grader:   &stubClient{response: gradeJSON(3.0)},
		Rewriter: &stubClient{response: "rest hours watchkeeping requirements"},
		Verifier: &stubClient{response: `{"issues":[],"confidence":0.8}`},
	}, WithMaxIterations(2))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "what are the rest rules"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if res.Iterations != 2 {
		t.Fatalf("expected exactly 2 iterations, got %d", res.Iterations)
	}
	if generator.calls != 1 {
		t.Fatalf("expected generation to run once, got %d", generator.calls)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected an evidence-quality warning after exhausting the budget")
	}
	if len(retriever.queries) != 3 {
		t.Fatalf("expected 3 retrievals (original + 2 rewrites), got %d", len(retriever.queries))
	}
}

func TestAnswerFlagsFabricatedClaim(t *testing.T) {
	ctx := context.Background()
	retriever := &stubRetriever{batches: [][]Evidence{colregsEvidence()}}
	generator := &stubGenerator{draft: &Draft{
		Text:      "Vessels must keep a look-out within 12.5 miles of shore [colregs-lookout].",
		Citations: []string{"colregs-lookout"},
	}}

	engine, err := New(retriever, generator, Backends{
		Grader:   &stubClient{response: gradeJSON(9.0)},
		Verifier: &stubClient{response: `{"issues":["the 12.5 mile figure is unsupported"],"confidence":0.3}`},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "What does Rule 5 require?"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if res.Verification == nil || len(res.Verification.Issues) == 0 {
		t.Fatalf("expected verification issues, got %+v", res.Verification)
	}
	if !res.Verification.NeedsWarning(0.5) {
		t.Fatal("expected NeedsWarning to fire")
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected warnings on the result")
	}
	if res.Answer != generator.draft.Text {
		t.Fatal("verification must never alter the answer text")
	}
}

func TestAnswerDecomposesComplexQueryFirst(t *testing.T) {
	ctx := context.Background()
	weak := []Evidence{{ID: "misc-gloss", Text: "General shipping terminology.", Source: "Glossary"}}
	retriever := &stubRetriever{batches: [][]Evidence{
		weak,
		{{ID: "solas-fire", Text: "Fire pumps are required on cargo ships.", Source: "SOLAS", Locator: "Ch. II-2"}},
	}}
	generator := &stubGenerator{draft: &Draft{Text: "Fire pumps are required [solas-fire].", Citations: []string{"solas-fire"}}}

	grader := &phasedClient{phaseSize: 1, phases: []string{gradeJSON(2.0), gradeJSON(8.0)}}
	rewriter := &stubClient{response: `{"sub_queries":["SOLAS fire pump requirements","MARPOL discharge limits"]}`}

	engine, err := New(retriever, generator, Backends{
		Grader:   grader,
		Rewriter: rewriter,
		Verifier: &stubClient{response: `{"issues":[],"confidence":0.9}`},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "List all fire safety rules and the pollution discharge limits"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if len(res.Rewrites) != 1 || res.Rewrites[0].Strategy != StrategyDecompose {
		t.Fatalf("expected a decompose rewrite, got %+v", res.Rewrites)
	}
	if len(res.Rewrites[0].SubQueries) != 2 {
		t.Fatalf("expected 2 sub-queries, got %v", res.Rewrites[0].SubQueries)
	}
	// Both sub-queries hit retrieval after the rewrite.
	if len(retriever.queries) != 3 {
		t.Fatalf("expected 3 searches (original + 2 sub-queries), got %v", retriever.queries)
	}
}

func TestAnswerRewriteFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	weak := []Evidence{{ID: "w-adjacent", Text: "Adjacent topic only.", Source: "SOLAS"}}
	retriever := &stubRetriever{batches: [][]Evidence{weak}}
	generator := &stubGenerator{draft: &Draft{Text: "Partial answer [w-adjacent].", Citations: []string{"w-adjacent"}}}

	engine, err := New(retriever, generator, Backends{
		Grader:   &stubClient{response: gradeJSON(2.0)},
		Rewriter: &stubClient{err: errors.New("backend down")},
		Verifier: &stubClient{response: `{"issues":[],"confidence":0.8}`},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "what are the safety rules"})
	if err != nil {
		t.Fatalf("rewrite failure must not fail the request: %v", err)
	}
	if generator.calls != 1 {
		t.Fatal("expected generation to still run")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "rewriting was unavailable") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an evidence-quality warning, got %v", res.Warnings)
	}
}

func TestAnswerRetrievalFailureIsFatal(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("index offline")}
	generator := &stubGenerator{draft: &Draft{Text: "unused"}}

	engine, err := New(retriever, generator, Backends{
		Grader: &stubClient{response: gradeJSON(8.0)},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	_, err = engine.Answer(context.Background(), Query{Text: "any question"})
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestAnswerGenerationFailureIsFatal(t *testing.T) {
	retriever := &stubRetriever{batches: [][]Evidence{colregsEvidence()}}
	generator := &stubGenerator{err: errors.New("model offline")}

	engine, err := New(retriever, generator, Backends{
		Grader: &stubClient{response: gradeJSON(8.0)},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	_, err = engine.Answer(context.Background(), Query{Text: "any question"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestAnswerRejectsBlankQuery(t *testing.T) {
	engine, err := New(
		&stubRetriever{},
		&stubGenerator{draft: &Draft{Text: "unused"}},
		Backends{Grader: &stubClient{response: gradeJSON(8.0)}},
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	_, err = engine.Answer(context.Background(), Query{Text: "   "})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAnswerVerificationForcedByAnalysis(t *testing.T) {
	ctx := context.Background()
	retriever := &stubRetriever{batches: [][]Evidence{colregsEvidence()}}
	generator := &stubGenerator{draft: &Draft{Text: "Look-out and safe speed are required [colregs-lookout] [colregs-speed].", Citations: []string{"colregs-lookout", "colregs-speed"}}}
	verifier := &stubClient{response: `{"issues":[],"confidence":0.9}`}

	engine, err := New(retriever, generator, Backends{
		Grader:   &stubClient{response: gradeJSON(9.0)},
		Verifier: verifier,
	}, WithVerification(false))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	// Enumeration queries are classified complex, which forces verification
	// even though it is disabled by configuration.
	res, err := engine.Answer(ctx, Query{Text: "List all rules about keeping watch"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if res.Verification == nil {
		t.Fatal("expected forced verification for an enumeration query")
	}
	if verifier.callCount() == 0 {
		t.Fatal("expected verifier backend to be consulted")
	}
}

func TestAnswerSkipsVerificationWhenDisabled(t *testing.T) {
	ctx := context.Background()
	retriever := &stubRetriever{batches: [][]Evidence{colregsEvidence()}}
	generator := &stubGenerator{draft: &Draft{Text: "Safe speed applies [colregs-speed].", Citations: []string{"colregs-speed"}}}

	engine, err := New(retriever, generator, Backends{
		Grader: &stubClient{response: gradeJSON(9.0)},
	}, WithVerification(false))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := engine.Answer(ctx, Query{Text: "What is the safe speed rule?"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if res.Verification != nil {
		t.Fatalf("expected no verification, got %+v", res.Verification)
	}
}

func TestAnswerCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, err := New(
		&stubRetriever{batches: [][]Evidence{colregsEvidence()}},
		&stubGenerator{draft: &Draft{Text: "unused"}},
		Backends{Grader: &stubClient{response: gradeJSON(8.0)}},
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	_, err = engine.Answer(ctx, Query{Text: "any question"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAnswerIterationsNeverExceedBudget(t *testing.T) {
	for _, budget := range []int{0, 1, 3} {
		retriever := &stubRetriever{batches: [][]Evidence{{{ID: "x", Text: "unrelated"}}}}
		generator := &stubGenerator{draft: &Draft{Text: "best effort"}}

		engine, err := New(retriever, generator, Backends{
			Grader:   &stubClient{response: gradeJSON(1.0)},
			Rewriter: &stubClient{response: "a different query each time"},
		}, WithMaxIterations(budget), WithVerification(false))
		if err != nil {
			t.Fatalf("New error: %v", err)
		}

		res, err := engine.Answer(context.Background(), Query{Text: "hopeless question"})
		if err != nil {
			t.Fatalf("budget %d: Answer failed: %v", budget, err)
		}
		if res.Iterations < 0 || res.Iterations > budget {
			t.Fatalf("budget %d: iterations %d out of bounds", budget, res.Iterations)
		}
		if res.Iterations != budget {
			t.Fatalf("budget %d: expected full budget to be spent, got %d", budget, res.Iterations)
		}
	}
}

func TestNewValidatesConfiguration(t *testing.T) {
	retriever := &stubRetriever{}
	generator := &stubGenerator{draft: &Draft{Text: "unused"}}
	backends := Backends{Grader: &stubClient{response: gradeJSON(5.0)}}

	cases := []struct {
		name string
		opts []Option
	}{
		{"threshold too high", []Option{WithGradeThreshold(11)}},
		{"threshold negative", []Option{WithGradeThreshold(-0.5)}},
		{"cutoff out of range", []Option{WithRelevanceCutoff(12)}},
		{"confidence out of range", []Option{WithMinConfidence(1.5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(retriever, generator, backends, tc.opts...); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}

	if _, err := New(nil, generator, backends); err == nil {
		t.Fatal("expected error for nil retriever")
	}
	if _, err := New(retriever, nil, backends); err == nil {
		t.Fatal("expected error for nil generator")
	}
	if _, err := New(retriever, generator, Backends{}); err == nil {
		t.Fatal("expected error when no grader backend is available")
	}
}

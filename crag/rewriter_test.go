package crag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRewriteNeverReturnsInputUnchanged(t *testing.T) {
	ctx := context.Background()
	query := "can you tell me the rules for anchoring?"
	feedback := `average relevance 2.0 across 3 items is below 7.0; closest match: covers "anchorage" designation, not light requirements`

	cases := []struct {
		name     string
		response string
	}{
		{"backend cooperates", "anchored vessel light and shape requirements"},
		{"backend echoes the query", query},
		{"backend echoes with different case", strings.ToUpper(query)},
		{"backend returns whitespace", "   \n  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := NewRewriter(&stubClient{response: tc.response}, nil)
			out, err := rw.Rewrite(ctx, query, feedback)
			if err != nil {
				t.Fatalf("Rewrite failed: %v", err)
			}
			if strings.EqualFold(strings.TrimSpace(out.Query), strings.TrimSpace(query)) {
				t.Fatalf("rewrite returned the query unchanged: %q", out.Query)
			}
			if out.Strategy != StrategyRewrite {
				t.Fatalf("expected rewrite strategy, got %s", out.Strategy)
			}
		})
	}
}

func TestRewriteStripsConversationalFillers(t *testing.T) {
	rw := NewRewriter(&stubClient{response: "could you tell me the overtaking rules?"}, nil)

	// Backend parrots a filler-laden near-copy; the local refinement path
	// kicks in only on an exact echo, so this passes through as-is. Feed the
	// echo case instead to exercise the filler stripping.
	out, err := rw.Rewrite(context.Background(), "could you tell me the overtaking rules?", "weak batch")
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	lower := strings.ToLower(out.Query)
	if strings.Contains(lower, "could you tell me") {
		t.Fatalf("filler survived local refinement: %q", out.Query)
	}
	if !strings.Contains(lower, "overtaking rules") {
		t.Fatalf("intent was lost in refinement: %q", out.Query)
	}
}

func TestRewriteBackendOutage(t *testing.T) {
	rw := NewRewriter(&stubClient{err: errors.New("model offline")}, nil)
	_, err := rw.Rewrite(context.Background(), "some query", "feedback")
	if !errors.Is(err, ErrRewriteBackend) {
		t.Fatalf("expected ErrRewriteBackend, got %v", err)
	}

	rwNil := NewRewriter(nil, nil)
	_, err = rwNil.Rewrite(context.Background(), "some query", "feedback")
	if !errors.Is(err, ErrRewriteBackend) {
		t.Fatalf("expected ErrRewriteBackend for nil backend, got %v", err)
	}
}

func TestExpandAddsSynonymsWithoutBackend(t *testing.T) {
	rw := NewRewriter(nil, nil)
	out, err := rw.Expand(context.Background(), "ship lights in fog")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	lower := strings.ToLower(out.Query)
	if !strings.HasPrefix(lower, "ship lights in fog") {
		t.Fatalf("expansion must preserve the original query: %q", out.Query)
	}
	for _, term := range []string{"vessel", "navigation lights", "restricted visibility"} {
		if !strings.Contains(lower, term) {
			t.Fatalf("expected synonym %q in %q", term, out.Query)
		}
	}
	if out.Strategy != StrategyExpand {
		t.Fatalf("expected expand strategy, got %s", out.Strategy)
	}
}

func TestExpandUsesBackendTerms(t *testing.T) {
	rw := NewRewriter(&stubClient{response: "- pilot ladder\n- embarkation arrangements"}, nil)
	out, err := rw.Expand(context.Background(), "pilot boarding requirements")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	lower := strings.ToLower(out.Query)
	if !strings.Contains(lower, "pilot ladder") || !strings.Contains(lower, "embarkation arrangements") {
		t.Fatalf("backend terms missing from %q", out.Query)
	}
}

func TestExpandSurvivesBackendOutage(t *testing.T) {
	rw := NewRewriter(&stubClient{err: errors.New("model offline")}, nil)
	out, err := rw.Expand(context.Background(), "crew rest rules")
	if err != nil {
		t.Fatalf("an expansion outage must fall back to synonym rules: %v", err)
	}
	if !strings.Contains(strings.ToLower(out.Query), "seafarers") {
		t.Fatalf("expected rule-based synonym in %q", out.Query)
	}
}

func TestDecomposeParsesBackendPlan(t *testing.T) {
	rw := NewRewriter(&stubClient{response: "```json\n{\"sub_queries\":[\"SOLAS lifeboat capacity requirements\",\"SOLAS lifeboat drill frequency\",\"lifeboat equipment inventory\"]}\n```"}, nil)

	query := "Everything about lifeboats: capacity, drills, and equipment"
	out, err := rw.Decompose(context.Background(), query)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	if out.Strategy != StrategyDecompose {
		t.Fatalf("expected decompose strategy, got %s", out.Strategy)
	}
	if len(out.SubQueries) < 2 {
		t.Fatalf("expected at least 2 sub-queries, got %v", out.SubQueries)
	}
	for _, sub := range out.SubQueries {
		if strings.EqualFold(strings.TrimSpace(sub), strings.TrimSpace(query)) {
			t.Fatalf("a sub-query may not equal the original: %q", sub)
		}
	}
}

func TestDecomposeCapsSubQueries(t *testing.T) {
	rw := NewRewriter(&stubClient{response: `{"sub_queries":["a b","c d","e f","g h","i j","k l"]}`}, nil)
	out, err := rw.Decompose(context.Background(), "a very broad question about everything")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(out.SubQueries) > 4 {
		t.Fatalf("default cap is 4 sub-queries, got %d", len(out.SubQueries))
	}
}

func TestDecomposeFallsBackToConjunctionSplitting(t *testing.T) {
	rw := NewRewriter(&stubClient{response: "I cannot answer in JSON, sorry"}, nil)
	out, err := rw.Decompose(context.Background(), "fire pump requirements and oily water discharge limits")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(out.SubQueries) != 2 {
		t.Fatalf("expected conjunction split into 2 parts, got %v", out.SubQueries)
	}
}

func TestDecomposeIndivisibleQueryFails(t *testing.T) {
	rw := NewRewriter(&stubClient{response: "not json either"}, nil)
	_, err := rw.Decompose(context.Background(), "freeboard?")
	if !errors.Is(err, ErrRewriteBackend) {
		t.Fatalf("expected ErrRewriteBackend for an indivisible query, got %v", err)
	}
}

package crag

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/harborlight/navqa/errors"
)

func verifierFixture() []Evidence {
	return []Evidence{
		{ID: "colregs-lights", Text: "A power-driven vessel underway shall exhibit a masthead light forward and sidelights.", Source: "COLREGs", Locator: "Rule 23"},
		{ID: "colregs-anchor", Text: "A vessel at anchor shall exhibit an all-round white light where it can best be seen.", Source: "COLREGs", Locator: "Rule 30"},
	}
}

func TestVerifyCleanAnswer(t *testing.T) {
	verifier := NewVerifier(nil, nil)
	draft := &Draft{
		Text:      "A vessel at anchor must exhibit an all-round white light where it can best be seen [colregs-anchor].",
		Citations: []string{"colregs-anchor"},
	}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(v.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", v.Issues)
	}
	if v.NeedsWarning(0.5) {
		t.Fatalf("a clean supported answer should not warn, confidence %.2f", v.Confidence)
	}
}

func TestVerifyFlagsFabricatedNumbers(t *testing.T) {
	verifier := NewVerifier(nil, nil)
	draft := &Draft{
		Text:      "An anchored vessel must show its light within 200 metres of the bow [colregs-anchor].",
		Citations: []string{"colregs-anchor"},
	}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(v.Issues) == 0 {
		t.Fatal("expected a fabrication issue for the unsupported distance")
	}
	found := false
	for _, issue := range v.Issues {
		if strings.Contains(issue, "200") {
			found = true
		}
	}
	if !found {
		t.Fatalf("issue should name the fabricated number, got %v", v.Issues)
	}
	if !v.NeedsWarning(0.5) {
		t.Fatal("a flagged answer must warn")
	}
}

func TestVerifyFlagsUnknownCitations(t *testing.T) {
	verifier := NewVerifier(nil, nil)
	draft := &Draft{
		Text:      "Anchored vessels show an all-round white light [solas-anchor].",
		Citations: []string{"solas-anchor"},
	}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	found := false
	for _, issue := range v.Issues {
		if strings.Contains(issue, "solas-anchor") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a citation issue naming solas-anchor, got %v", v.Issues)
	}
}

func TestVerifyAcceptsSourceNameAsCitation(t *testing.T) {
	verifier := NewVerifier(nil, nil)
	draft := &Draft{
		Text:      "Sidelights are required when underway.",
		Citations: []string{"COLREGs"},
	}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	for _, issue := range v.Issues {
		if strings.Contains(issue, "COLREGs") {
			t.Fatalf("citing a source document must be accepted, got %v", v.Issues)
		}
	}
}

func TestVerifyNilDraftIsInvalid(t *testing.T) {
	verifier := NewVerifier(nil, nil)
	_, err := verifier.Verify(context.Background(), nil, verifierFixture())
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerifyBackendVerdictMerges(t *testing.T) {
	backend := &stubClient{response: `{"issues":["the claim about signal range is unsupported"],"confidence":0.4}`}
	verifier := NewVerifier(backend, nil)
	draft := &Draft{
		Text:      "An anchored vessel shows an all-round white light [colregs-anchor].",
		Citations: []string{"colregs-anchor"},
	}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if v.Confidence != 0.4 {
		t.Fatalf("backend confidence should win, got %.2f", v.Confidence)
	}
	found := false
	for _, issue := range v.Issues {
		if strings.Contains(issue, "signal range") {
			found = true
		}
	}
	if !found {
		t.Fatalf("backend issue missing from %v", v.Issues)
	}
}

func TestVerifyBackendOutageDegrades(t *testing.T) {
	backend := &stubClient{err: errors.New("model offline")}
	verifier := NewVerifier(backend, nil)
	draft := &Draft{Text: "An anchored vessel shows an all-round white light.", Citations: nil}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("a backend outage must not fail verification: %v", err)
	}
	if v.Confidence != 0 {
		t.Fatalf("expected zero confidence after an outage, got %.2f", v.Confidence)
	}
	if len(v.Issues) == 0 {
		t.Fatal("expected a degradation issue")
	}
	if !v.NeedsWarning(0.5) {
		t.Fatal("a degraded verification must warn")
	}
}

func TestVerifyDeduplicatesMergedIssues(t *testing.T) {
	backend := &stubClient{response: `{"issues":["answer cites \"solas-anchor\" which matches no supplied evidence item"],"confidence":0.6}`}
	verifier := NewVerifier(backend, nil)
	draft := &Draft{
		Text:      "Anchored vessels show a white light.",
		Citations: []string{"solas-anchor"},
	}

	v, err := verifier.Verify(context.Background(), draft, verifierFixture())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	count := 0
	for _, issue := range v.Issues {
		if strings.Contains(issue, "solas-anchor") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected the duplicated issue once, got %v", v.Issues)
	}
}

func TestNeedsWarningTriggers(t *testing.T) {
	cases := []struct {
		name string
		v    *Verification
		want bool
	}{
		{"nil verification", nil, false},
		{"clean and confident", &Verification{Confidence: 0.9}, false},
		{"issues alone", &Verification{Issues: []string{"x"}, Confidence: 0.9}, true},
		{"low confidence alone", &Verification{Confidence: 0.3}, true},
		{"exactly at the floor", &Verification{Confidence: 0.5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.v.NeedsWarning(0.5); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

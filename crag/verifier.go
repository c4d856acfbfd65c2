package crag

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/pkg/logging"
)

// AnswerVerifier screens a generated answer against the evidence it cites.
// Verification only ever degrades to "attach a warning"; it never blocks or
// alters the answer text.
type AnswerVerifier interface {
	Verify(ctx context.Context, draft *Draft, evidence []Evidence) (*Verification, error)
}

// Verifier is the default AnswerVerifier. It runs three independent checks:
// citation accuracy and fabricated specifics are caught deterministically,
// while overall factual consistency is judged by the backend when one is
// configured. Confidence is holistic, not a count of issues.
type Verifier struct {
	backend llm.Client // Optional; deterministic checks run regardless
	prompt  string
	logger  *slog.Logger
}

// NewVerifier builds a verifier. The backend may be nil.
func NewVerifier(backend llm.Client, cfg *Config) *Verifier {
	if cfg == nil {
		cfg = defaultConfig()
	}
	return &Verifier{
		backend: backend,
		prompt:  cfg.VerifierPrompt,
		logger:  logging.WithComponent("crag_verifier"),
	}
}

// Verify screens the draft. A backend outage is not an error: the result
// carries a generic issue and the deterministic findings instead.
func (v *Verifier) Verify(ctx context.Context, draft *Draft, evidence []Evidence) (*Verification, error) {
	if draft == nil {
		return nil, fmt.Errorf("%w: nil draft", apperrors.ErrInvalidInput)
	}

	issues := checkCitations(draft, evidence)
	issues = append(issues, checkFabrication(draft.Text, evidence)...)

	confidence := heuristicConfidence(draft.Text, evidence, len(issues))

	if v.backend != nil {
		backendIssues, backendConfidence, err := v.consultBackend(ctx, draft, evidence)
		switch {
		case err != nil:
			v.logger.Warn("verification backend failed, falling back to heuristic screening", "error", err)
			issues = append(issues, "verification backend unavailable; answer screened heuristically only")
			confidence = 0
		default:
			issues = mergeIssues(issues, backendIssues)
			confidence = clamp(backendConfidence, 0, 1)
		}
	}

	v.logger.Debug("answer verified", "issues", len(issues), "confidence", confidence)
	return &Verification{Issues: issues, Confidence: confidence}, nil
}

// checkCitations flags cited identifiers that match no supplied evidence.
func checkCitations(draft *Draft, evidence []Evidence) []string {
	known := make(map[string]struct{}, len(evidence)*2)
	for _, ev := range evidence {
		known[strings.ToLower(ev.ID)] = struct{}{}
		if ev.Source != "" {
			known[strings.ToLower(ev.Source)] = struct{}{}
		}
	}

	var issues []string
	for _, cit := range draft.Citations {
		if _, ok := known[strings.ToLower(strings.TrimSpace(cit))]; !ok {
			issues = append(issues, fmt.Sprintf("answer cites %q which matches no supplied evidence item", cit))
		}
	}
	return issues
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// checkFabrication flags sentences asserting numbers absent from every
// evidence item. Numbers are the cheapest fabrication signal to check
// deterministically; names and dates are left to the backend pass.
func checkFabrication(text string, evidence []Evidence) []string {
	var corpus strings.Builder
	for _, ev := range evidence {
		corpus.WriteString(ev.Text)
		corpus.WriteString(" ")
	}
	supported := make(map[string]struct{})
	for _, num := range numberPattern.FindAllString(corpus.String(), -1) {
		supported[num] = struct{}{}
	}

	var issues []string
	for _, sentence := range splitSentences(text) {
		for _, num := range numberPattern.FindAllString(sentence, -1) {
			if _, ok := supported[num]; !ok {
				issues = append(issues, fmt.Sprintf("sentence asserts %q which appears in no evidence item: %q", num, trimForLog(sentence, 90)))
				break
			}
		}
	}
	return issues
}

// heuristicConfidence estimates trust from evidence overlap when no backend
// verdict is available. Sentences sharing content words with the evidence
// count as supported.
func heuristicConfidence(text string, evidence []Evidence, issueCount int) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 || len(evidence) == 0 {
		return 0.2
	}

	corpus := strings.ToLower(func() string {
		var b strings.Builder
		for _, ev := range evidence {
			b.WriteString(ev.Text)
			b.WriteString(" ")
		}
		return b.String()
	}())

	supported := 0
	for _, sentence := range sentences {
		for _, word := range strings.Fields(strings.ToLower(sentence)) {
			word = strings.Trim(word, `.,;:"'()[]`)
			if len(word) >= 6 && strings.Contains(corpus, word) {
				supported++
				break
			}
		}
	}

	confidence := 0.3 + 0.6*float64(supported)/float64(len(sentences))
	confidence -= 0.1 * float64(issueCount)
	return clamp(confidence, 0.05, 0.95)
}

type backendVerdict struct {
	Issues     []string `json:"issues"`
	Confidence float64  `json:"confidence"`
}

func (v *Verifier) consultBackend(ctx context.Context, draft *Draft, evidence []Evidence) ([]string, float64, error) {
	userPrompt := fmt.Sprintf("Answer:\n%s\n\nCitations: %s\n\nEvidence:\n%s\nReturn JSON only.",
		draft.Text, strings.Join(draft.Citations, ", "), formatEvidence(evidence))
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, v.prompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}

	resp, err := v.backend.Generate(ctx, msgs)
	if err != nil {
		return nil, 0, err
	}

	verdict, err := decodeJSON[backendVerdict](resp.Content)
	if err != nil {
		// Unparseable verdicts degrade to the heuristic path, same as an outage.
		return nil, 0, fmt.Errorf("verdict unparseable: %w", err)
	}
	return verdict.Issues, verdict.Confidence, nil
}

func mergeIssues(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, issue := range base {
		seen[strings.ToLower(issue)] = struct{}{}
	}
	for _, issue := range extra {
		issue = strings.TrimSpace(issue)
		if issue == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(issue)]; !ok {
			seen[strings.ToLower(issue)] = struct{}{}
			base = append(base, issue)
		}
	}
	return base
}

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

func splitSentences(text string) []string {
	parts := sentenceEnd.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

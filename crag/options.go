package crag

import (
	"fmt"
	"strings"

	apperrors "github.com/harborlight/navqa/errors"
)

// Config controls behaviour of the correction loop and its collaborators.
// Thresholds are policy constants, not universal truths: the defaults below
// come from tuning against a maritime-regulation corpus and should be
// re-tuned for a different evidence base.
type Config struct {
	Name               string  // Logical name for tracing/logging
	MaxIterations      int     // Rewrite attempts allowed per request (>= 0)
	GradeThreshold     float64 // Batch average below this triggers a rewrite, range [0,10]
	RelevanceCutoff    float64 // Per-item score counted as relevant, range [0,10]
	MinConfidence      float64 // Verification confidence floor, range [0,1]
	EnableVerification bool    // Run the verifier after generation
	SearchLimit        int     // Evidence items requested per retrieval
	MaxSubQueries      int     // Upper bound for decomposition output (2-5)

	AnalyzerPrompt  string // System prompt for the topic-tagging backend
	GraderPrompt    string // System prompt for per-item relevance grading
	RewritePrompt   string // System prompt for feedback-driven rewriting
	ExpandPrompt    string // System prompt for synonym expansion
	DecomposePrompt string // System prompt for sub-query decomposition
	VerifierPrompt  string // System prompt for answer screening

	analyzer QueryAnalyzer  // Optional override for the analyzer component
	grader   EvidenceGrader // Optional override for the grader component
	rewriter QueryRewriter  // Optional override for the rewriter component
	verifier AnswerVerifier // Optional override for the verifier component
	trace    TraceSink      // Optional transition observer
}

// Option customises the engine configuration.
type Option func(*Config)

// WithMaxIterations bounds how many rewrite attempts one request may consume.
// Zero disables the correction loop entirely.
func WithMaxIterations(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxIterations = n
		}
	}
}

// WithGradeThreshold sets the batch average score below which the loop rewrites.
func WithGradeThreshold(t float64) Option {
	return func(cfg *Config) {
		cfg.GradeThreshold = t
	}
}

// WithRelevanceCutoff sets the per-item score counted as relevant.
func WithRelevanceCutoff(c float64) Option {
	return func(cfg *Config) {
		cfg.RelevanceCutoff = c
	}
}

// WithMinConfidence sets the verification confidence floor below which a
// warning is attached.
func WithMinConfidence(c float64) Option {
	return func(cfg *Config) {
		cfg.MinConfidence = c
	}
}

// WithVerification enables or disables post-generation answer screening.
// Analysis can still force verification for high-risk queries.
func WithVerification(enabled bool) Option {
	return func(cfg *Config) {
		cfg.EnableVerification = enabled
	}
}

// WithSearchLimit caps how many evidence items each retrieval requests.
func WithSearchLimit(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.SearchLimit = n
		}
	}
}

// WithMaxSubQueries caps how many sub-queries decomposition may emit.
func WithMaxSubQueries(n int) Option {
	return func(cfg *Config) {
		if n >= 2 && n <= 5 {
			cfg.MaxSubQueries = n
		}
	}
}

// WithName sets the logical engine name used in logs and trace events.
func WithName(name string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(name) != "" {
			cfg.Name = name
		}
	}
}

// WithAnalyzerPrompt overrides the topic-tagging system prompt.
func WithAnalyzerPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.AnalyzerPrompt = prompt
		}
	}
}

// WithGraderPrompt overrides the relevance-grading system prompt.
func WithGraderPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.GraderPrompt = prompt
		}
	}
}

// WithRewritePrompt overrides the query-rewriting system prompt.
func WithRewritePrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.RewritePrompt = prompt
		}
	}
}

// WithExpandPrompt overrides the query-expansion system prompt.
func WithExpandPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.ExpandPrompt = prompt
		}
	}
}

// WithDecomposePrompt overrides the decomposition system prompt.
func WithDecomposePrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.DecomposePrompt = prompt
		}
	}
}

// WithVerifierPrompt overrides the answer-screening system prompt.
func WithVerifierPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.VerifierPrompt = prompt
		}
	}
}

// WithAnalyzer plugs in a custom query analyzer.
func WithAnalyzer(a QueryAnalyzer) Option {
	return func(cfg *Config) {
		if a != nil {
			cfg.analyzer = a
		}
	}
}

// WithGrader plugs in a custom evidence grader.
func WithGrader(g EvidenceGrader) Option {
	return func(cfg *Config) {
		if g != nil {
			cfg.grader = g
		}
	}
}

// WithRewriter plugs in a custom query rewriter.
func WithRewriter(r QueryRewriter) Option {
	return func(cfg *Config) {
		if r != nil {
			cfg.rewriter = r
		}
	}
}

// WithVerifier plugs in a custom answer verifier.
func WithVerifier(v AnswerVerifier) Option {
	return func(cfg *Config) {
		if v != nil {
			cfg.verifier = v
		}
	}
}

// WithTraceSink registers an observer for state transitions. The sink never
// influences control flow.
func WithTraceSink(sink TraceSink) Option {
	return func(cfg *Config) {
		if sink != nil {
			cfg.trace = sink
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:               "corrective-rag",
		MaxIterations:      2,
		GradeThreshold:     7.0,
		RelevanceCutoff:    5.0,
		MinConfidence:      0.5,
		EnableVerification: true,
		SearchLimit:        8,
		MaxSubQueries:      4,
		AnalyzerPrompt: `You tag maritime-regulation questions with the regulation families they touch (for example colregs, solas, marpol, stcw, load_lines, port_state, ballast_water).
Return JSON only: {"topics":["..."]}. Emit an empty list when no family clearly applies. Never invent families outside the maritime domain.`,
		GraderPrompt: `You grade whether a retrieved maritime-regulation passage can help answer a question. Score topical match AND whether the passage plausibly contains the answer, not just shared vocabulary.
Return JSON only: {"score": <0-10>, "rationale": "<one sentence naming what the passage covers or misses>"}.
Scoring guide: 9-10 the passage states the queried rule; 6-8 it covers the rule's area with partial detail; 3-5 adjacent topic, answer unlikely; 0-2 unrelated.`,
		RewritePrompt: `You refine search queries against a maritime-regulation knowledge base. The previous retrieval was weak; the grader's feedback tells you why.
Rewrite the query so retrieval succeeds: add the missing qualifier, name the regulation family, or disambiguate the term the feedback points at. Preserve the question's intent.
Return the rewritten query as a single line of plain text, nothing else. Never return the query unchanged.`,
		ExpandPrompt: `You broaden search queries over maritime regulations without changing their intent. Suggest up to five synonyms or closely related regulatory terms for the query (for example "fog" -> "restricted visibility").
Return the terms as plain text, one per line, no commentary.`,
		DecomposePrompt: `You split one complex maritime-regulation question into independently retrievable sub-queries whose union covers the original intent.
Return JSON only: {"sub_queries":["..."]}. Produce between 2 and {{max_sub_queries}} sub-queries; each must be narrower than the original and answerable on its own.`,
		VerifierPrompt: `You audit a generated answer about maritime regulations against the evidence passages it was built from.
Check independently: (1) every factual claim is traceable to at least one passage; (2) cited identifiers correspond to supplied passages; (3) no sentence asserts specifics (numbers, rule names, dates) absent from all passages.
Return JSON only: {"issues":["<one human-readable sentence per failed check>"], "confidence": <0-1 holistic trust in the answer>}. An empty issues list means the answer is fully supported.`,
	}
}

func applyOptions(cfg *Config, opts []Option) *Config {
	if cfg == nil {
		cfg = defaultConfig()
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (cfg *Config) validate() error {
	if cfg.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations %d must be >= 0", apperrors.ErrInvalidInput, cfg.MaxIterations)
	}
	if cfg.GradeThreshold < 0 || cfg.GradeThreshold > 10 {
		return fmt.Errorf("%w: grade threshold %.2f outside [0,10]", apperrors.ErrInvalidInput, cfg.GradeThreshold)
	}
	if cfg.RelevanceCutoff < 0 || cfg.RelevanceCutoff > 10 {
		return fmt.Errorf("%w: relevance cutoff %.2f outside [0,10]", apperrors.ErrInvalidInput, cfg.RelevanceCutoff)
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence %.2f outside [0,1]", apperrors.ErrInvalidInput, cfg.MinConfidence)
	}
	if cfg.SearchLimit <= 0 {
		return fmt.Errorf("%w: search limit %d must be positive", apperrors.ErrInvalidInput, cfg.SearchLimit)
	}
	if cfg.MaxSubQueries < 2 || cfg.MaxSubQueries > 5 {
		return fmt.Errorf("%w: max sub-queries %d outside [2,5]", apperrors.ErrInvalidInput, cfg.MaxSubQueries)
	}
	return nil
}

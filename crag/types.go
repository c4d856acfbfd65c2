package crag

// Complexity buckets a query by how much retrieval work it implies.
type Complexity string

const (
	// ComplexitySimple is a direct factual lookup about a single named rule or entity.
	ComplexitySimple Complexity = "simple"
	// ComplexityModerate covers comparisons, cross-references, and queries that
	// only make sense with prior conversation context.
	ComplexityModerate Complexity = "moderate"
	// ComplexityComplex covers enumerations, multi-hop reasoning, and queries
	// spanning more than one regulatory domain.
	ComplexityComplex Complexity = "complex"
)

// Query is the immutable input to Engine.Answer.
type Query struct {
	Text    string   `json:"text"`
	Context []string `json:"context,omitempty"` // Prior conversation turns, oldest first
	Role    string   `json:"role,omitempty"`    // Caller-supplied audience role, forwarded to prompts only
}

// Analysis classifies a query before retrieval starts.
type Analysis struct {
	Complexity           Complexity `json:"complexity"`
	RequiresVerification bool       `json:"requires_verification"`
	Topics               []string   `json:"topics,omitempty"` // Detected regulation families, sorted
}

// Evidence is one retrieved passage. The engine treats it as read-only.
type Evidence struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Source  string `json:"source,omitempty"`  // Regulation family or document, e.g. "COLREGs"
	Locator string `json:"locator,omitempty"` // Page or section within the source
}

// Grade scores one evidence item against a query on a 0-10 scale.
type Grade struct {
	EvidenceID string  `json:"evidence_id"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale,omitempty"`
}

// GradingResult aggregates per-item grades for one retrieval pass.
type GradingResult struct {
	Query         string  `json:"query"`
	Grades        []Grade `json:"grades"`
	AvgScore      float64 `json:"avg_score"`
	RelevantCount int     `json:"relevant_count"`     // Items at or above the per-item relevance cutoff
	NeedsRewrite  bool    `json:"needs_rewrite"`      // AvgScore fell below the batch grade threshold
	Feedback      string  `json:"feedback,omitempty"` // Why the batch is weak; non-empty whenever NeedsRewrite
}

// Strategy names how a query was transformed between retrieval attempts.
type Strategy string

const (
	StrategyRewrite   Strategy = "rewrite"
	StrategyExpand    Strategy = "expand"
	StrategyDecompose Strategy = "decompose"
)

// Rewrite is the outcome of one query transformation attempt.
type Rewrite struct {
	Query      string   `json:"query"` // The transformed query fed to the next retrieval
	Strategy   Strategy `json:"strategy"`
	SubQueries []string `json:"sub_queries,omitempty"` // Populated for StrategyDecompose
}

// Verification screens a generated answer against the evidence that produced it.
type Verification struct {
	Issues     []string `json:"issues,omitempty"`
	Confidence float64  `json:"confidence"` // Holistic trust score in [0,1]
}

// NeedsWarning reports whether the result should carry a verification warning.
// A non-empty issue list and a confidence below the floor are independent
// triggers; either one alone is sufficient.
func (v *Verification) NeedsWarning(minConfidence float64) bool {
	if v == nil {
		return false
	}
	return len(v.Issues) > 0 || v.Confidence < minConfidence
}

// Draft is the generation collaborator's output before verification.
type Draft struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
}

// Result is the engine's terminal output for one request. It is created once
// and never mutated after Answer returns.
type Result struct {
	Query          string        `json:"query"`                     // Original query text
	RewrittenQuery string        `json:"rewritten_query,omitempty"` // Last query used for a successful retrieval; empty when no rewrite was retrieved against
	Answer         string        `json:"answer"`
	Citations      []string      `json:"citations,omitempty"`
	WasRewritten   bool          `json:"was_rewritten"`
	Iterations     int           `json:"iterations"`             // Rewrite attempts consumed, never above MaxIterations
	Rewrites       []Rewrite     `json:"rewrites,omitempty"`     // Full transformation chain, oldest first
	Verification   *Verification `json:"verification,omitempty"` // Nil when verification was skipped
	Warnings       []string      `json:"warnings,omitempty"`
}

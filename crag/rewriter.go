package crag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/pkg/logging"
)

// QueryRewriter produces improved or decomposed queries between retrieval
// attempts. The three operations are independent; the engine picks one per
// iteration based on the analysis.
type QueryRewriter interface {
	// Rewrite refines the query using the grader's feedback. It never returns
	// the input unchanged.
	Rewrite(ctx context.Context, query, feedback string) (*Rewrite, error)
	// Expand augments the query with synonyms without changing its intent.
	Expand(ctx context.Context, query string) (*Rewrite, error)
	// Decompose splits a complex query into 2-5 independently retrievable
	// sub-queries covering the original intent.
	Decompose(ctx context.Context, query string) (*Rewrite, error)
}

// Rewriter is the default QueryRewriter, backed by an LLM for rewriting and
// decomposition with rule-based expansion as a degraded path.
type Rewriter struct {
	backend         llm.Client
	maxSubQueries   int
	rewritePrompt   string
	expandPrompt    string
	decomposePrompt string
	logger          *slog.Logger
}

// NewRewriter builds a rewriter around the given backend. A nil backend makes
// Rewrite and Decompose fail with ErrRewriteBackend; Expand still works via
// synonym rules.
func NewRewriter(backend llm.Client, cfg *Config) *Rewriter {
	if cfg == nil {
		cfg = defaultConfig()
	}
	return &Rewriter{
		backend:         backend,
		maxSubQueries:   cfg.MaxSubQueries,
		rewritePrompt:   cfg.RewritePrompt,
		expandPrompt:    cfg.ExpandPrompt,
		decomposePrompt: cfg.DecomposePrompt,
		logger:          logging.WithComponent("crag_rewriter"),
	}
}

// Rewrite produces a refined query incorporating the grader's feedback.
func (r *Rewriter) Rewrite(ctx context.Context, query, feedback string) (*Rewrite, error) {
	if r.backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrRewriteBackend)
	}

	userPrompt := fmt.Sprintf("Query:\n%s\n\nGrader feedback:\n%s\n\nRewritten query:", query, feedback)
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, r.rewritePrompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}
	resp, err := r.backend.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewriteBackend, err)
	}

	rewritten := firstLine(resp.Content)
	if rewritten == "" || strings.EqualFold(rewritten, strings.TrimSpace(query)) {
		// A no-op rewrite violates the contract; nudge the query locally
		// using the feedback rather than failing the attempt.
		rewritten = refineLocally(query, feedback)
	}

	r.logger.Debug("query rewritten",
		"from", trimForLog(query, 100),
		"to", trimForLog(rewritten, 100),
	)
	return &Rewrite{Query: rewritten, Strategy: StrategyRewrite}, nil
}

// Expand augments the query with related regulatory vocabulary. The backend
// is optional; rule-based synonyms cover outages.
func (r *Rewriter) Expand(ctx context.Context, query string) (*Rewrite, error) {
	terms := r.backendTerms(ctx, query)
	if len(terms) == 0 {
		terms = synonymTerms(query)
	}

	expanded := strings.TrimSpace(query)
	for _, term := range terms {
		if !strings.Contains(strings.ToLower(expanded), strings.ToLower(term)) {
			expanded += " " + term
		}
	}
	return &Rewrite{Query: expanded, Strategy: StrategyExpand}, nil
}

// Decompose splits a complex query into sub-queries.
func (r *Rewriter) Decompose(ctx context.Context, query string) (*Rewrite, error) {
	subs, err := r.backendSubQueries(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(subs) < 2 {
		subs = ruleDecompose(query, r.maxSubQueries)
	}
	if len(subs) < 2 {
		return nil, fmt.Errorf("%w: decomposition produced %d sub-queries", ErrRewriteBackend, len(subs))
	}
	if len(subs) > r.maxSubQueries {
		subs = subs[:r.maxSubQueries]
	}

	r.logger.Debug("query decomposed", "query", trimForLog(query, 100), "sub_queries", len(subs))
	return &Rewrite{
		Query:      strings.Join(subs, "; "),
		Strategy:   StrategyDecompose,
		SubQueries: subs,
	}, nil
}

type subQueryPlan struct {
	SubQueries []string `json:"sub_queries"`
}

func (r *Rewriter) backendSubQueries(ctx context.Context, query string) ([]string, error) {
	if r.backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrRewriteBackend)
	}

	systemPrompt := strings.ReplaceAll(r.decomposePrompt, "{{max_sub_queries}}", strconv.Itoa(r.maxSubQueries))
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, systemPrompt),
		message.NewMessage(message.RoleUser, fmt.Sprintf("Complex question:\n%s\n\nReturn JSON only.", query)),
	}
	resp, err := r.backend.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewriteBackend, err)
	}

	plan, err := decodeJSON[subQueryPlan](resp.Content)
	if err != nil {
		r.logger.Warn("decomposition output invalid, falling back to rules", "error", err)
		return nil, nil
	}

	trimmedQuery := strings.TrimSpace(query)
	subs := make([]string, 0, len(plan.SubQueries))
	for _, sub := range plan.SubQueries {
		sub = strings.TrimSpace(sub)
		if sub == "" || strings.EqualFold(sub, trimmedQuery) {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *Rewriter) backendTerms(ctx context.Context, query string) []string {
	if r.backend == nil {
		return nil
	}
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, r.expandPrompt),
		message.NewMessage(message.RoleUser, "Query: "+query),
	}
	resp, err := r.backend.Generate(ctx, msgs)
	if err != nil {
		r.logger.Debug("expansion backend failed, using synonym rules", "error", err)
		return nil
	}
	terms := splitList(resp.Content)
	if len(terms) > 5 {
		terms = terms[:5]
	}
	return terms
}

// fillerPhrases are conversational openers that hurt retrieval.
var fillerPhrases = []string{
	"can you tell me", "could you tell me", "i want to know", "i would like to know",
	"please explain", "i need to know", "tell me",
}

// refineLocally guarantees a changed query when the backend echoes the input:
// strip fillers, then fold the feedback's quoted or capitalised terms in.
func refineLocally(query, feedback string) string {
	refined := strings.TrimSpace(query)
	lower := strings.ToLower(refined)
	for _, filler := range fillerPhrases {
		if idx := strings.Index(lower, filler); idx >= 0 {
			refined = strings.TrimSpace(refined[:idx] + refined[idx+len(filler):])
			lower = strings.ToLower(refined)
		}
	}
	refined = strings.TrimSuffix(refined, "?")
	refined = strings.TrimSpace(refined)

	terms := keyTerms(feedback, 3)
	for _, term := range terms {
		if !strings.Contains(strings.ToLower(refined), strings.ToLower(term)) {
			refined += " " + term
		}
	}
	if strings.EqualFold(refined, strings.TrimSpace(query)) {
		refined += " specific rule reference"
	}
	return refined
}

// regulatorySynonyms backs Expand when no LLM is reachable.
var regulatorySynonyms = map[string][]string{
	"ship":       {"vessel"},
	"boat":       {"vessel"},
	"rule":       {"regulation"},
	"rules":      {"regulations"},
	"fog":        {"restricted visibility"},
	"lights":     {"navigation lights"},
	"crew":       {"seafarers"},
	"pollution":  {"discharge"},
	"inspection": {"port state control"},
	"lifeboat":   {"survival craft"},
	"speed":      {"safe speed"},
}

func synonymTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, "?.,!;:")
		if syns, ok := regulatorySynonyms[word]; ok {
			terms = append(terms, syns...)
		}
	}
	return terms
}

// conjunctionSeps split multi-part questions into retrievable parts.
var conjunctionSeps = []string{" and ", " as well as ", " plus ", "; "}

func ruleDecompose(query string, limit int) []string {
	parts := []string{strings.TrimSpace(strings.TrimSuffix(query, "?"))}
	for _, sep := range conjunctionSeps {
		var next []string
		for _, part := range parts {
			for _, piece := range strings.Split(part, sep) {
				piece = strings.TrimSpace(piece)
				if piece != "" {
					next = append(next, piece)
				}
			}
		}
		parts = next
	}

	subs := make([]string, 0, limit)
	for _, part := range parts {
		if len(strings.Fields(part)) >= 2 {
			subs = append(subs, part)
		}
		if len(subs) == limit {
			break
		}
	}
	return subs
}

// keyTerms pulls up to n informative words out of grader feedback.
func keyTerms(feedback string, n int) []string {
	var terms []string
	for _, word := range strings.Fields(feedback) {
		word = strings.Trim(word, `"'.,;:()`)
		if len(word) < 5 || isStopTerm(word) {
			continue
		}
		terms = append(terms, word)
		if len(terms) == n {
			break
		}
	}
	return terms
}

var stopTerms = map[string]struct{}{
	"average": {}, "relevance": {}, "across": {}, "items": {}, "below": {},
	"scored": {}, "above": {}, "closest": {}, "match": {}, "evidence": {},
	"passage": {}, "covers": {}, "retrieval": {}, "returned": {},
}

func isStopTerm(word string) bool {
	_, ok := stopTerms[strings.ToLower(word)]
	return ok
}

func firstLine(raw string) string {
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), `"“”`))
		if line != "" {
			return line
		}
	}
	return ""
}

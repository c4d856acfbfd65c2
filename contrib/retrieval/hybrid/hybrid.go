// Package hybrid blends vector similarity with a BM25 keyword index.
// Regulation queries often carry exact provision numbers ("Rule 13",
// "Annex V") that embeddings blur, so the keyword side keeps literal
// matches competitive with semantic ones. The engine satisfies the
// correction loop's Retriever contract.
package hybrid

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/harborlight/navqa/crag"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/embedder"
	"github.com/harborlight/navqa/rag/preprocess"
	"github.com/harborlight/navqa/rag/reranker"
	"github.com/harborlight/navqa/vector"
)

// Config configures the hybrid retrieval engine.
type Config struct {
	VectorTopK    int
	KeywordTopK   int
	VectorWeight  float32
	KeywordWeight float32
	Chunker       chunking.Chunker
	Reranker      reranker.Reranker
}

// Option customises the engine config.
type Option func(*Config)

// WithVectorTopK sets how many vector hits are pulled from the store.
func WithVectorTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.VectorTopK = k
		}
	}
}

// WithKeywordTopK caps keyword results that merge into the final list.
func WithKeywordTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.KeywordTopK = k
		}
	}
}

// WithWeights customises the contribution of vector vs. keyword search
// (defaults 0.7/0.3).
func WithWeights(vectorWeight, keywordWeight float32) Option {
	return func(cfg *Config) {
		if vectorWeight >= 0 && keywordWeight >= 0 {
			cfg.VectorWeight = vectorWeight
			cfg.KeywordWeight = keywordWeight
		}
	}
}

// WithChunker overrides the sectioning strategy.
func WithChunker(ch chunking.Chunker) Option {
	return func(cfg *Config) {
		if ch != nil {
			cfg.Chunker = ch
		}
	}
}

// WithReranker overrides the vector-side reranker.
func WithReranker(r reranker.Reranker) Option {
	return func(cfg *Config) {
		if r != nil {
			cfg.Reranker = r
		}
	}
}

// Engine composes semantic vector search with a lightweight BM25 index.
type Engine struct {
	store    vector.Store
	embedder embedder.Embedder
	cfg      Config

	mu        sync.RWMutex
	documents map[string]document.Document
	passages  map[string]document.Passage
	keyword   *bm25Index
}

var _ crag.Retriever = (*Engine)(nil)

// New creates a hybrid retrieval engine.
func New(store vector.Store, emb embedder.Embedder, opts ...Option) (*Engine, error) {
	if store == nil || emb == nil {
		return nil, fmt.Errorf("%w: hybrid retrieval requires a store and an embedder", apperrors.ErrInvalidInput)
	}
	cfg := Config{
		VectorTopK:    12,
		KeywordTopK:   6,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		Chunker:       chunking.NewProvisionChunker(),
		Reranker:      reranker.NewCosine(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		store:     store,
		embedder:  emb,
		cfg:       cfg,
		documents: make(map[string]document.Document),
		passages:  make(map[string]document.Passage),
		keyword:   newBM25(),
	}, nil
}

// Index ingests the provided documents into both indexes.
func (e *Engine) Index(ctx context.Context, docs ...document.Document) error {
	for _, doc := range docs {
		document.EnsureDocumentID(&doc)
		doc.Content = preprocess.CleanBasic(doc.Content)
		passages, err := e.cfg.Chunker.Chunk(ctx, doc)
		if err != nil {
			return fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}
		for _, p := range passages {
			vec, err := e.embedder.EmbedPassage(ctx, p)
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", p.ID, err)
			}
			if err := e.store.Add(ctx, &vector.Embedding{
				ID:     p.ID,
				Vector: vec,
				Text:   p.Content,
			}); err != nil {
				return fmt.Errorf("store passage %s: %w", p.ID, err)
			}
			e.keyword.add(p)
			e.mu.Lock()
			e.passages[p.ID] = p.Clone()
			e.documents[doc.ID] = doc.Clone()
			e.mu.Unlock()
		}
	}
	return nil
}

// Search implements the retriever contract: vector and keyword matches are
// merged by weighted score, then filtered by topic hints that name indexed
// regulation families. Hints that match nothing are ignored.
func (e *Engine) Search(ctx context.Context, query string, topicHints []string, limit int) ([]crag.Evidence, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", apperrors.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 4
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vecHits, err := e.store.Search(ctx, queryVec, e.cfg.VectorTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]reranker.Candidate, 0, len(vecHits))
	for _, hit := range vecHits {
		p, ok := e.passage(hit.ID)
		if !ok {
			continue
		}
		candidates = append(candidates, reranker.Candidate{Passage: p, Vector: hit.Vector})
	}

	var vecResults []reranker.Result
	if len(candidates) > 0 && e.cfg.Reranker != nil {
		vecResults, err = e.cfg.Reranker.Rank(reranker.ContextWithQuery(ctx, query), queryVec, candidates)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	type scored struct {
		passage document.Passage
		score   float32
	}
	scoreMap := make(map[string]scored)
	for _, hit := range e.keyword.search(query, e.cfg.KeywordTopK) {
		p, ok := e.passage(hit.ID)
		if !ok {
			continue
		}
		entry := scoreMap[p.ID]
		entry.passage = p
		entry.score += hit.Score * e.cfg.KeywordWeight
		scoreMap[p.ID] = entry
	}
	for _, res := range vecResults {
		entry := scoreMap[res.Passage.ID]
		entry.passage = res.Passage
		entry.score += res.Score * e.cfg.VectorWeight
		scoreMap[res.Passage.ID] = entry
	}

	families := e.matchedFamilies(topicHints)
	final := make([]scored, 0, len(scoreMap))
	for _, sc := range scoreMap {
		if families != nil {
			doc, ok := e.documentOf(sc.passage)
			if !ok {
				continue
			}
			if _, wanted := families[doc.Family]; !wanted {
				continue
			}
		}
		final = append(final, sc)
	}
	sort.SliceStable(final, func(i, j int) bool {
		return final[i].score > final[j].score
	})
	if len(final) > limit {
		final = final[:limit]
	}

	evidence := make([]crag.Evidence, 0, len(final))
	for _, sc := range final {
		ev := crag.Evidence{
			ID:      sc.passage.ID,
			Text:    sc.passage.Content,
			Locator: sc.passage.Locator,
		}
		if doc, ok := e.documentOf(sc.passage); ok {
			ev.Source = doc.SourceName()
		}
		evidence = append(evidence, ev)
	}
	return evidence, nil
}

// matchedFamilies resolves topic hints against indexed families. Nil means
// no filtering.
func (e *Engine) matchedFamilies(hints []string) map[string]struct{} {
	if len(hints) == 0 {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	indexed := make(map[string]struct{})
	for _, doc := range e.documents {
		if doc.Family != "" {
			indexed[doc.Family] = struct{}{}
		}
	}
	matched := make(map[string]struct{})
	for _, hint := range hints {
		family := strings.ToLower(strings.TrimSpace(hint))
		if _, ok := indexed[family]; ok {
			matched[family] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return matched
}

func (e *Engine) documentOf(p document.Passage) (document.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.documents[p.DocumentID]
	return doc, ok
}

// Document returns a cloned document by ID.
func (e *Engine) Document(id string) (document.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.documents[id]
	return doc.Clone(), ok
}

// Clear removes all indexed state.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.documents = make(map[string]document.Document)
	e.passages = make(map[string]document.Passage)
	e.keyword = newBM25()
	return nil
}

// Count returns the number of indexed passages.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

func (e *Engine) passage(id string) (document.Passage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.passages[id]
	return p.Clone(), ok
}

// --- BM25 index ---

type bm25Index struct {
	mu            sync.RWMutex
	docFreq       map[string]int
	postings      map[string]map[string]int
	passageLength map[string]int
	totalLength   int
	docCount      int
	k1            float64
	b             float64
}

var bm25Regex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func newBM25() *bm25Index {
	return &bm25Index{
		docFreq:       make(map[string]int),
		postings:      make(map[string]map[string]int),
		passageLength: make(map[string]int),
		k1:            1.6,
		b:             0.75,
	}
}

func (b *bm25Index) add(p document.Passage) {
	terms := tokenize(p.Content)
	if len(terms) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docCount++
	b.passageLength[p.ID] = len(terms)
	b.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := b.postings[term]; !ok {
			b.postings[term] = make(map[string]int)
		}
		b.postings[term][p.ID]++
		if _, exists := seen[term]; !exists {
			b.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

type keywordResult struct {
	ID    string
	Score float32
}

func (b *bm25Index) search(query string, limit int) []keywordResult {
	terms := unique(tokenize(query))
	if len(terms) == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.docCount == 0 {
		return nil
	}
	avgLen := float64(b.totalLength) / float64(b.docCount)
	scores := make(map[string]float64)
	for _, term := range terms {
		postings := b.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := b.docFreq[term]
		idf := math.Log((float64(b.docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for passageID, tf := range postings {
			docLen := float64(b.passageLength[passageID])
			numerator := float64(tf) * (b.k1 + 1)
			denominator := float64(tf) + b.k1*(1-b.b+b.b*(docLen/avgLen))
			scores[passageID] += idf * (numerator / denominator)
		}
	}
	results := make([]keywordResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, keywordResult{ID: id, Score: float32(score)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func tokenize(content string) []string {
	return bm25Regex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

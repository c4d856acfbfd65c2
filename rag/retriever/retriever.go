// Package retriever is the default retrieval engine: it ingests regulation
// documents (clean, chunk, embed, store) and answers queries with evidence
// passages. It satisfies the correction loop's Retriever contract.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/harborlight/navqa/crag"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/pkg/logging"
	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/embedder"
	"github.com/harborlight/navqa/rag/preprocess"
	"github.com/harborlight/navqa/rag/reranker"
	"github.com/harborlight/navqa/vector"
)

// Config controls retrieval behaviour.
type Config struct {
	SearchTopK int     // Neighbours fetched from the vector store per query
	ScoreFloor float32 // Similarity below this is discarded
	Preprocess bool    // Run the cleaning pipeline at ingestion
}

// Option customises the engine.
type Option func(*Config)

// WithSearchTopK sets how many neighbours each vector search fetches.
func WithSearchTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.SearchTopK = k
		}
	}
}

// WithScoreFloor drops candidates whose similarity falls below the floor.
func WithScoreFloor(floor float32) Option {
	return func(cfg *Config) {
		if floor >= 0 {
			cfg.ScoreFloor = floor
		}
	}
}

// WithPreprocess toggles the text cleaning pipeline at ingestion.
func WithPreprocess(enabled bool) Option {
	return func(cfg *Config) {
		cfg.Preprocess = enabled
	}
}

// Engine coordinates chunking, embedding, similarity search, and reranking
// over a regulation corpus.
type Engine struct {
	store    vector.Store
	embedder embedder.Embedder
	chunker  chunking.Chunker
	reranker reranker.Reranker
	cfg      Config
	logger   *slog.Logger

	mu        sync.RWMutex
	documents map[string]document.Document
	passages  map[string]document.Passage
}

// New creates a retrieval engine. Store, embedder, and chunker are required;
// the reranker is optional.
func New(store vector.Store, emb embedder.Embedder, chunker chunking.Chunker, rer reranker.Reranker, opts ...Option) (*Engine, error) {
	if store == nil || emb == nil || chunker == nil {
		return nil, fmt.Errorf("%w: retriever requires a store, an embedder, and a chunker", apperrors.ErrInvalidInput)
	}
	cfg := Config{
		SearchTopK: 16,
		ScoreFloor: 0,
		Preprocess: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Engine{
		store:     store,
		embedder:  emb,
		chunker:   chunker,
		reranker:  rer,
		cfg:       cfg,
		logger:    logging.WithComponent("retriever"),
		documents: make(map[string]document.Document),
		passages:  make(map[string]document.Passage),
	}, nil
}

// Index ingests documents: clean, chunk, embed, store.
func (e *Engine) Index(ctx context.Context, docs ...document.Document) error {
	for _, doc := range docs {
		document.EnsureDocumentID(&doc)
		if e.cfg.Preprocess {
			doc.Content = preprocess.Preprocess(doc.Content)
		}

		passages, err := e.chunker.Chunk(ctx, doc)
		if err != nil {
			return fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}

		for _, p := range passages {
			vec, err := e.embedder.EmbedPassage(ctx, p)
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", p.ID, err)
			}
			emb := &vector.Embedding{ID: p.ID, Vector: vec, Text: p.Content}
			if err := e.store.Add(ctx, emb); err != nil {
				return fmt.Errorf("store passage %s: %w", p.ID, err)
			}

			e.mu.Lock()
			e.passages[p.ID] = p.Clone()
			e.mu.Unlock()
		}

		e.mu.Lock()
		e.documents[doc.ID] = doc.Clone()
		e.mu.Unlock()

		e.logger.Info("document indexed",
			"document_id", doc.ID,
			"family", doc.Family,
			"passages", len(passages),
		)
	}
	return nil
}

// Search implements the correction loop's Retriever contract: semantic
// search, optional topic-hint filtering, rerank, and mapping to evidence.
// Hints narrow the corpus only when they match indexed families; unknown
// hints are ignored rather than emptying the result.
func (e *Engine) Search(ctx context.Context, query string, topicHints []string, limit int) ([]crag.Evidence, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: blank query", apperrors.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 4
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.store.Search(ctx, queryVec, e.cfg.SearchTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := e.toCandidates(hits)
	if families := e.matchedFamilies(topicHints); len(families) > 0 {
		candidates = e.filterByFamily(candidates, families)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ranked, err := e.rank(ctx, query, queryVec, candidates)
	if err != nil {
		return nil, err
	}

	evidence := make([]crag.Evidence, 0, limit)
	for _, res := range ranked {
		if res.Score < e.cfg.ScoreFloor {
			continue
		}
		evidence = append(evidence, e.toEvidence(res.Passage))
		if len(evidence) == limit {
			break
		}
	}

	e.logger.Debug("search completed",
		"query", query,
		"hits", len(hits),
		"returned", len(evidence),
	)
	return evidence, nil
}

func (e *Engine) rank(ctx context.Context, query string, queryVec []float32, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if e.reranker == nil {
		out := make([]reranker.Result, 0, len(candidates))
		for _, cand := range candidates {
			out = append(out, reranker.Result{Passage: cand.Passage, Score: cand.Score})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		return out, nil
	}

	ctx = reranker.ContextWithQuery(ctx, query)
	ranked, err := e.reranker.Rank(ctx, queryVec, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return ranked, nil
}

func (e *Engine) toCandidates(hits []*vector.Embedding) []reranker.Candidate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	candidates := make([]reranker.Candidate, 0, len(hits))
	for _, hit := range hits {
		p, ok := e.passages[hit.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, reranker.Candidate{
			Passage: p.Clone(),
			Vector:  hit.Vector,
		})
	}
	return candidates
}

// matchedFamilies keeps only hints that name a family present in the corpus.
func (e *Engine) matchedFamilies(hints []string) map[string]struct{} {
	if len(hints) == 0 {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	indexed := make(map[string]struct{})
	for _, doc := range e.documents {
		if doc.Family != "" {
			indexed[strings.ToLower(doc.Family)] = struct{}{}
		}
	}

	matched := make(map[string]struct{})
	for _, hint := range hints {
		hint = strings.ToLower(strings.TrimSpace(hint))
		if _, ok := indexed[hint]; ok {
			matched[hint] = struct{}{}
		}
	}
	return matched
}

func (e *Engine) filterByFamily(candidates []reranker.Candidate, families map[string]struct{}) []reranker.Candidate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]reranker.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		doc, ok := e.documents[cand.Passage.DocumentID]
		if !ok {
			continue
		}
		if _, ok := families[strings.ToLower(doc.Family)]; ok {
			out = append(out, cand)
		}
	}
	return out
}

func (e *Engine) toEvidence(p document.Passage) crag.Evidence {
	source := ""
	e.mu.RLock()
	if doc, ok := e.documents[p.DocumentID]; ok {
		source = doc.SourceName()
	}
	e.mu.RUnlock()

	return crag.Evidence{
		ID:      p.ID,
		Text:    p.Content,
		Source:  source,
		Locator: p.Locator,
	}
}

// Document fetches an indexed document by ID.
func (e *Engine) Document(id string) (document.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.documents[id]
	if !ok {
		return document.Document{}, false
	}
	return doc.Clone(), true
}

// Clear drops the vector store and all indexed state.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.documents = make(map[string]document.Document)
	e.passages = make(map[string]document.Passage)
	return nil
}

// Count reports how many passages are indexed.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// Package inmemory provides a process-local vector store. It backs tests,
// examples, and deployments whose corpus fits in memory.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/vector"
)

// Store keeps embeddings in a map and brute-forces similarity search.
type Store struct {
	mu         sync.RWMutex
	embeddings map[string]*vector.Embedding
}

var _ vector.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{embeddings: make(map[string]*vector.Embedding)}
}

// Add inserts or replaces an embedding.
func (s *Store) Add(_ context.Context, emb *vector.Embedding) error {
	if emb == nil || emb.ID == "" {
		return fmt.Errorf("%w: embedding needs an ID", apperrors.ErrInvalidInput)
	}
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: embedding %s has no vector", apperrors.ErrInvalidInput, emb.ID)
	}

	clone := *emb
	clone.Vector = append([]float32(nil), emb.Vector...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[emb.ID] = &clone
	return nil
}

// Search scans every stored embedding and returns the topK nearest by
// cosine similarity.
func (s *Store) Search(_ context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", apperrors.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		emb        *vector.Embedding
		similarity float32
	}
	results := make([]scored, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		if len(emb.Vector) != len(queryVector) {
			continue
		}
		results = append(results, scored{
			emb:        emb,
			similarity: vector.CosineSimilarity(queryVector, emb.Vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].similarity > results[j].similarity
	})
	if topK > len(results) {
		topK = len(results)
	}

	out := make([]*vector.Embedding, topK)
	for i := 0; i < topK; i++ {
		out[i] = results[i].emb
	}
	return out, nil
}

// Get retrieves an embedding by ID.
func (s *Store) Get(_ context.Context, id string) (*vector.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emb, ok := s.embeddings[id]
	if !ok {
		return nil, fmt.Errorf("embedding %s: %w", id, apperrors.ErrNotFound)
	}
	return emb, nil
}

// Delete removes an embedding by ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.embeddings[id]; !ok {
		return fmt.Errorf("embedding %s: %w", id, apperrors.ErrNotFound)
	}
	delete(s.embeddings, id)
	return nil
}

// Clear removes all embeddings.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings = make(map[string]*vector.Embedding)
	return nil
}

// Count reports how many embeddings are stored.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings), nil
}

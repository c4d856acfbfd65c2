// Package reranker reorders vector-search candidates before they reach the
// grading stage.
package reranker

import (
	"context"
	"sort"

	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/vector"
)

// Candidate is one retrieved passage with its stored vector and the score the
// store reported, if any.
type Candidate struct {
	Passage document.Passage
	Vector  []float32
	Score   float32
}

// Result is one reranked passage.
type Result struct {
	Passage document.Passage
	Score   float32
}

// Reranker reorders candidates, best first.
type Reranker interface {
	Rank(ctx context.Context, queryVector []float32, candidates []Candidate) ([]Result, error)
}

// Cosine ranks candidates by cosine similarity to the query vector.
// Candidates without a usable vector keep their store-reported score.
type Cosine struct{}

// NewCosine creates the cosine reranker.
func NewCosine() *Cosine {
	return &Cosine{}
}

// Rank implements Reranker.
func (c *Cosine) Rank(_ context.Context, queryVector []float32, candidates []Candidate) ([]Result, error) {
	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		score := cand.Score
		if len(cand.Vector) > 0 && len(queryVector) == len(cand.Vector) {
			score = vector.CosineSimilarity(queryVector, cand.Vector)
		}
		results = append(results, Result{Passage: cand.Passage, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

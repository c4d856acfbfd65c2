// Package mmr reranks candidates by Max Marginal Relevance. Consolidated
// regulation editions repeat near-identical provisions across chapters, so
// plain similarity ranking often fills the evidence set with the same rule
// restated; MMR trades a little relevance for coverage.
package mmr

import (
	"context"
	"math"

	"github.com/harborlight/navqa/rag/reranker"
	"github.com/harborlight/navqa/vector"
)

// Reranker balances query relevance against redundancy among picked passages.
// Lambda 1 is pure relevance, 0 is pure diversity.
type Reranker struct {
	Lambda float32
	Limit  int
}

// New returns an MMR reranker with defaults suited to evidence grading.
func New() *Reranker {
	return &Reranker{
		Lambda: 0.7,
		Limit:  8,
	}
}

// Rank implements reranker.Reranker.
func (m *Reranker) Rank(_ context.Context, queryVec []float32, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	type item struct {
		cand  reranker.Candidate
		score float32
	}
	remaining := make([]item, len(candidates))
	for i, cand := range candidates {
		score := cand.Score
		if len(queryVec) > 0 && len(cand.Vector) == len(queryVec) {
			score = vector.CosineSimilarity(queryVec, cand.Vector)
		}
		remaining[i] = item{cand: cand, score: score}
	}

	selected := make([]reranker.Result, 0, len(candidates))
	picked := make([]reranker.Candidate, 0, len(candidates))
	for len(remaining) > 0 && (m.Limit <= 0 || len(selected) < m.Limit) {
		bestIdx := -1
		bestScore := float32(math.Inf(-1))
		for idx, it := range remaining {
			redundancy := float32(0)
			for _, prev := range picked {
				if len(it.cand.Vector) == 0 || len(prev.Vector) != len(it.cand.Vector) {
					continue
				}
				if sim := vector.CosineSimilarity(it.cand.Vector, prev.Vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := m.Lambda*it.score - (1-m.Lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}
		if bestIdx == -1 {
			break
		}
		best := remaining[bestIdx]
		selected = append(selected, reranker.Result{Passage: best.cand.Passage, Score: best.score})
		picked = append(picked, best.cand)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}

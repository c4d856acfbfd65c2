// Package vector defines the storage and embedding contracts the retrieval
// engine is built on, plus the similarity math shared by stores and rerankers.
package vector

import (
	"context"
	"math"
)

// Embedding is one stored vector together with the passage text it encodes.
type Embedding struct {
	ID     string
	Vector []float32
	Text   string
}

// Store persists embeddings and answers nearest-neighbour queries.
type Store interface {
	// Add inserts or replaces an embedding.
	Add(ctx context.Context, emb *Embedding) error

	// Search returns up to topK embeddings closest to the query vector,
	// best match first.
	Search(ctx context.Context, queryVector []float32, topK int) ([]*Embedding, error)

	// Get retrieves a stored embedding by ID.
	Get(ctx context.Context, id string) (*Embedding, error)

	// Delete removes an embedding by ID.
	Delete(ctx context.Context, id string) error

	// Clear drops every stored embedding.
	Clear(ctx context.Context) error

	// Count reports how many embeddings are stored.
	Count(ctx context.Context) (int, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// EuclideanDistance computes the L2 distance between two vectors. Mismatched
// lengths yield +Inf so the pair sorts last.
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Normalize scales the vector to unit length in place and returns it.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

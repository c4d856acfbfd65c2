// Package embedder adapts generic vector embedders to the retrieval engine's
// passage-oriented contract.
package embedder

import (
	"context"
	"fmt"

	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/vector"
)

// Embedder produces vectors for passages at index time and for queries at
// search time. The two sides may use different prompts or models.
type Embedder interface {
	EmbedPassage(ctx context.Context, p document.Passage) ([]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorAdapter wraps a vector.Embedder, embedding passages and queries the
// same way.
type VectorAdapter struct {
	base vector.Embedder
}

// NewVectorAdapter creates the adapter.
func NewVectorAdapter(base vector.Embedder) *VectorAdapter {
	return &VectorAdapter{base: base}
}

// EmbedPassage embeds the passage content.
func (v *VectorAdapter) EmbedPassage(ctx context.Context, p document.Passage) ([]float32, error) {
	if v == nil || v.base == nil {
		return nil, fmt.Errorf("%w: no base embedder", apperrors.ErrInvalidInput)
	}
	return v.base.Embed(ctx, p.Content)
}

// EmbedQuery embeds the query string.
func (v *VectorAdapter) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v == nil || v.base == nil {
		return nil, fmt.Errorf("%w: no base embedder", apperrors.ErrInvalidInput)
	}
	return v.base.Embed(ctx, query)
}

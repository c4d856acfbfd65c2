// Package token provides a token-window chunker for documents without the
// provision structure the default splitter relies on, such as circulars and
// guidance notes. Windows are measured by a tokenizer so passage sizes line
// up with embedding model limits.
package token

import (
	"context"

	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/tokenizer"
)

// Chunker windows document content by token count with overlap between
// consecutive passages.
type Chunker struct {
	tok           tokenizer.Tokenizer
	maxTokens     int
	overlapTokens int
	includeMeta   bool
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the window size (default 256).
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlapTokens sets how many tokens consecutive windows share
// (default 32).
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// WithMetadataCopy toggles copying document metadata onto each passage.
func WithMetadataCopy(enabled bool) Option {
	return func(c *Chunker) {
		c.includeMeta = enabled
	}
}

// New creates the chunker. A nil tokenizer falls back to word splitting.
func New(tok tokenizer.Tokenizer, opts ...Option) *Chunker {
	if tok == nil {
		tok = tokenizer.NewWordTokenizer()
	}
	c := &Chunker{
		tok:           tok,
		maxTokens:     256,
		overlapTokens: 32,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlapTokens >= c.maxTokens {
		c.overlapTokens = c.maxTokens / 2
	}
	return c
}

// Chunk implements chunking.Chunker. Passage text is reconstructed by
// decoding each window, so boundaries land on token edges rather than
// mid-rune.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Passage, error) {
	document.EnsureDocumentID(&doc)

	ids := c.tok.Encode(doc.Content)
	if len(ids) == 0 {
		return nil, nil
	}

	var passages []document.Passage
	ordinal := 0
	for start := 0; start < len(ids); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + c.maxTokens
		if end > len(ids) {
			end = len(ids)
		}

		p := document.Passage{
			ID:         document.NextPassageID(doc.ID),
			DocumentID: doc.ID,
			Content:    c.tok.Decode(ids[start:end]),
			Ordinal:    ordinal,
		}
		if c.includeMeta && len(doc.Metadata) > 0 {
			p.Metadata = make(map[string]any, len(doc.Metadata))
			for k, v := range doc.Metadata {
				p.Metadata[k] = v
			}
		}
		passages = append(passages, p)
		ordinal++

		if end == len(ids) {
			break
		}
		start = end - c.overlapTokens
	}
	return passages, nil
}

// Package summarizer condenses regulation passages into short abstracts
// with extracted key points, used for corpus digests and long-document
// ingestion reports.
package summarizer

import (
	"context"

	"github.com/harborlight/navqa/rag/document"
)

// Summary is the condensed form of one passage.
type Summary struct {
	PassageID string   `json:"passage_id"`
	Text      string   `json:"text"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// Summarizer condenses passages, preserving input order.
type Summarizer interface {
	SummarizePassages(ctx context.Context, passages []document.Passage) ([]Summary, error)
}

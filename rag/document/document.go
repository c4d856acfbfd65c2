// Package document models the regulation texts the retrieval engine indexes:
// whole documents (a convention chapter, an annex, a circular) and the
// passages they are split into.
package document

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Document is one ingestible regulation text.
type Document struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Family   string         `json:"family,omitempty"` // Regulation family tag, e.g. "colregs", "marpol"
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Passage is an indexable slice of a document. Locator names the provision
// the passage belongs to (a rule, regulation, or paragraph reference) so
// answers can cite it.
type Passage struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Ordinal    int            `json:"ordinal"`
	Locator    string         `json:"locator,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	docCounter     atomic.Int64
	passageCounter atomic.Int64
)

// EnsureDocumentID assigns a stable identifier when the caller supplied none.
func EnsureDocumentID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	doc.ID = fmt.Sprintf("doc_%d", docCounter.Add(1))
}

// NextPassageID returns a unique passage identifier scoped to the document.
func NextPassageID(docID string) string {
	next := passageCounter.Add(1)
	if docID == "" {
		return fmt.Sprintf("passage_%d", next)
	}
	return fmt.Sprintf("%s_p%d", docID, next)
}

// SourceName is the human-readable name cited in answers: the title when one
// is set, the upper-cased family otherwise.
func (d Document) SourceName() string {
	if d.Title != "" {
		return d.Title
	}
	return strings.ToUpper(d.Family)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the passage.
func (p Passage) Clone() Passage {
	out := p
	if p.Metadata != nil {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

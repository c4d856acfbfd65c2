// Package markdown splits markdown regulation texts by heading hierarchy.
// The HTML preprocessor renders scraped regulation pages as markdown, so
// heading-aware splitting keeps each rule or regulation heading with its
// body and records the heading as the passage locator.
package markdown

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
)

// Chunker splits markdown documents into one passage per heading section,
// delegating oversized sections to a fallback chunker.
type Chunker struct {
	maxHeadingLevel int
	maxCharacters   int
	minCharacters   int
	fallback        chunking.Chunker
	parser          goldmark.Markdown
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel caps which heading level starts a new passage
// (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMaxCharacters sets the section size above which the fallback
// chunker takes over.
func WithMaxCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars > 0 {
			c.maxCharacters = chars
		}
	}
}

// WithMinCharacters merges adjoining sections until they reach the given
// size. Zero disables merging.
func WithMinCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars >= 0 {
			c.minCharacters = chars
		}
	}
}

// WithFallbackChunker swaps the chunker used for oversized sections.
func WithFallbackChunker(ch chunking.Chunker) Option {
	return func(c *Chunker) {
		if ch != nil {
			c.fallback = ch
		}
	}
}

// New creates the chunker with provision-aware fallback splitting.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxHeadingLevel: 3,
		maxCharacters:   1200,
		minCharacters:   240,
		parser:          goldmark.New(),
		fallback: chunking.NewProvisionChunker(
			chunking.WithMaxChars(800),
			chunking.WithOverlap(120),
		),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Chunk implements chunking.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Passage, error) {
	document.EnsureDocumentID(&doc)

	sections := c.splitSections(doc.Content)
	if len(sections) == 0 {
		return c.fallback.Chunk(ctx, doc)
	}

	passages := make([]document.Passage, 0, len(sections))
	ordinal := 0
	for _, sec := range sections {
		payload := strings.TrimSpace(sec.raw)
		if payload == "" {
			continue
		}

		if len(payload) <= c.maxCharacters {
			passages = append(passages, document.Passage{
				ID:         document.NextPassageID(doc.ID),
				DocumentID: doc.ID,
				Content:    payload,
				Ordinal:    ordinal,
				Locator:    sec.title,
				Metadata:   mergeMetadata(doc.Metadata, sec.metadata),
			})
			ordinal++
			continue
		}

		tmpDoc := document.Document{
			ID:       doc.ID,
			Title:    doc.Title,
			Family:   doc.Family,
			Content:  payload,
			Metadata: mergeMetadata(doc.Metadata, sec.metadata),
		}
		splits, err := c.fallback.Chunk(ctx, tmpDoc)
		if err != nil {
			return nil, err
		}
		for _, split := range splits {
			p := split.Clone()
			p.ID = document.NextPassageID(doc.ID)
			p.DocumentID = doc.ID
			p.Ordinal = ordinal
			if p.Locator == "" || strings.HasPrefix(p.Locator, "para ") {
				p.Locator = sec.title
			}
			p.Metadata = mergeMetadata(tmpDoc.Metadata, p.Metadata)
			passages = append(passages, p)
			ordinal++
		}
	}

	return passages, nil
}

type section struct {
	raw      string
	level    int
	title    string
	metadata map[string]any
}

type headingInfo struct {
	start int
	level int
	title string
}

func (c *Chunker) splitSections(content string) []section {
	source := []byte(content)
	reader := text.NewReader(source)
	root := c.parser.Parser().Parse(reader)

	var headings []headingInfo
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if heading.Level > c.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		lines := heading.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		headings = append(headings, headingInfo{
			start: lines.At(0).Start,
			level: heading.Level,
			title: strings.TrimSpace(string(heading.Text(source))),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(headings) == 0 {
		raw := strings.TrimSpace(content)
		if raw == "" {
			return nil
		}
		return []section{{raw: raw}}
	}

	var sections []section
	if intro := strings.TrimSpace(string(source[:headings[0].start])); intro != "" {
		sections = append(sections, section{raw: intro})
	}
	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		raw := strings.TrimSpace(string(source[h.start:end]))
		if raw == "" {
			continue
		}
		sections = append(sections, section{
			raw:   raw,
			level: h.level,
			title: h.title,
			metadata: map[string]any{
				"section_title": h.title,
				"section_level": h.level,
			},
		})
	}
	return c.mergeShortSections(sections)
}

func (c *Chunker) mergeShortSections(sections []section) []section {
	if c.minCharacters <= 0 || len(sections) == 0 {
		return sections
	}
	merged := make([]section, 0, len(sections))
	var buffer *section
	for idx, sec := range sections {
		current := sec
		if buffer != nil {
			current = combineSections(*buffer, sec)
			buffer = nil
		}
		if len(current.raw) < c.minCharacters && idx < len(sections)-1 {
			tmp := current
			buffer = &tmp
			continue
		}
		merged = append(merged, current)
	}
	if buffer != nil {
		merged = append(merged, *buffer)
	}
	return merged
}

func combineSections(a, b section) section {
	return section{
		raw:      strings.TrimSpace(fmt.Sprintf("%s\n\n%s", a.raw, b.raw)),
		level:    a.level,
		title:    firstNonEmpty(a.title, b.title),
		metadata: mergeMetadata(a.metadata, b.metadata),
	}
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if base == nil && extra == nil {
		return nil
	}
	out := make(map[string]any)
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

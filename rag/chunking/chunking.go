// Package chunking splits regulation documents into passages sized for
// embedding. Regulation text has a strong natural structure (rules, articles,
// numbered paragraphs), so the splitter keeps provision boundaries intact and
// only windows within oversized provisions.
package chunking

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/harborlight/navqa/rag/document"
)

// Chunker splits one document into indexable passages.
type Chunker interface {
	Chunk(ctx context.Context, doc document.Document) ([]document.Passage, error)
}

// Options holds splitter tuning shared by the chunker implementations.
type Options struct {
	MaxChars    int
	Overlap     int
	Separator   string
	IncludeMeta bool
}

// Option customises splitter options.
type Option func(*Options)

// WithMaxChars bounds passage length in characters.
func WithMaxChars(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxChars = n
		}
	}
}

// WithOverlap sets how many characters consecutive windows share.
func WithOverlap(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Overlap = n
		}
	}
}

// WithSeparator sets the provision separator applied before windowing.
func WithSeparator(sep string) Option {
	return func(o *Options) {
		if sep != "" {
			o.Separator = sep
		}
	}
}

// WithMetadataCopy toggles copying document metadata onto each passage.
func WithMetadataCopy(enabled bool) Option {
	return func(o *Options) {
		o.IncludeMeta = enabled
	}
}

// ProvisionChunker splits on provision boundaries and windows oversized
// provisions with overlap.
type ProvisionChunker struct {
	opts Options
}

// NewProvisionChunker constructs a chunker with defaults tuned for
// regulation text: one provision per passage, 900-character ceiling.
func NewProvisionChunker(opts ...Option) *ProvisionChunker {
	cfg := Options{
		MaxChars:    900,
		Overlap:     120,
		Separator:   "\n\n",
		IncludeMeta: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = cfg.MaxChars / 4
	}
	return &ProvisionChunker{opts: cfg}
}

// provisionHeading matches the citations regulation text opens sections with.
var provisionHeading = regexp.MustCompile(`(?i)^((?:rule|regulation|article|annex|chapter|section|part)\s+[IVXLC0-9]+[0-9a-z./-]*)\b`)

// Chunk splits the document into passages. Each passage carries the locator
// of the provision it came from; text before any heading falls back to a
// paragraph number.
func (c *ProvisionChunker) Chunk(ctx context.Context, doc document.Document) ([]document.Passage, error) {
	document.EnsureDocumentID(&doc)

	locator := ""
	ordinal := 0
	var passages []document.Passage

	for _, part := range strings.Split(doc.Content, c.opts.Separator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := provisionHeading.FindStringSubmatch(part); m != nil {
			locator = normalizeLocator(m[1])
		}

		for _, window := range c.windows(part) {
			ordinal++
			passages = append(passages, c.newPassage(doc, ordinal, window, locator))
		}
	}

	if len(passages) == 0 && strings.TrimSpace(doc.Content) != "" {
		passages = append(passages, c.newPassage(doc, 1, strings.TrimSpace(doc.Content), locator))
	}
	return passages, nil
}

// windows slices one provision into overlapping rune windows.
func (c *ProvisionChunker) windows(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.opts.MaxChars {
		return []string{text}
	}

	var out []string
	step := c.opts.MaxChars - c.opts.Overlap
	for start := 0; start < len(runes); start += step {
		end := start + c.opts.MaxChars
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
	}
	return out
}

func (c *ProvisionChunker) newPassage(doc document.Document, ordinal int, content, locator string) document.Passage {
	if locator == "" {
		locator = "para " + strconv.Itoa(ordinal)
	}
	p := document.Passage{
		ID:         document.NextPassageID(doc.ID),
		DocumentID: doc.ID,
		Content:    content,
		Ordinal:    ordinal,
		Locator:    locator,
	}
	if c.opts.IncludeMeta && doc.Metadata != nil {
		p.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			p.Metadata[k] = v
		}
	}
	return p
}

func normalizeLocator(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return raw
	}
	head := strings.ToLower(fields[0])
	fields[0] = strings.ToUpper(head[:1]) + head[1:]
	return strings.Join(fields, " ")
}

// Package prompt holds the small toolkit the pipeline stages use to
// assemble LLM prompts: parsed templates for fixed stage prompts and a
// builder for prompts stitched together from runtime sections.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Template is a named prompt template with {{.Var}} placeholders.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses a prompt template.
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// MustTemplate is NewTemplate for package-level prompt constants; it panics
// on a parse error.
func MustTemplate(name, content string) *Template {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Render executes the template with the given variables.
func (t *Template) Render(vars map[string]any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Builder assembles a prompt from ordered parts.
type Builder struct {
	parts []string
}

// NewBuilder creates an empty prompt builder.
func NewBuilder() *Builder {
	return &Builder{parts: make([]string, 0, 4)}
}

// Add appends a raw part.
func (b *Builder) Add(part string) *Builder {
	b.parts = append(b.parts, part)
	return b
}

// AddFormat appends a formatted part.
func (b *Builder) AddFormat(format string, args ...any) *Builder {
	b.parts = append(b.parts, fmt.Sprintf(format, args...))
	return b
}

// AddSection appends a titled block, separated from what precedes it.
func (b *Builder) AddSection(title, content string) *Builder {
	b.parts = append(b.parts, fmt.Sprintf("%s:\n%s", title, content))
	return b
}

// Build joins the parts with blank lines.
func (b *Builder) Build() string {
	return strings.Join(b.parts, "\n\n")
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() *Builder {
	b.parts = b.parts[:0]
	return b
}

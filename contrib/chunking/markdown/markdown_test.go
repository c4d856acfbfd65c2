package markdown

import (
	"context"
	"testing"

	"github.com/harborlight/navqa/rag/document"
)

const colregsPartB = `
Part B applies to vessels in sight of one another and in restricted visibility.

## Rule 13

Any vessel overtaking any other shall keep out of the way of the vessel
being overtaken.

## Rule 14

When two power-driven vessels are meeting on reciprocal courses each shall
alter her course to starboard.
`

func TestChunkSplitsByHeadings(t *testing.T) {
	ch := New(WithMaxHeadingLevel(2), WithMinCharacters(0))
	doc := document.Document{ID: "colregs-b", Family: "colregs", Content: colregsPartB}

	passages, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("expected 3 passages (intro + 2 rules), got %d", len(passages))
	}
	if passages[0].Locator != "" {
		t.Errorf("intro passage should have no locator, got %q", passages[0].Locator)
	}
	if passages[1].Locator != "Rule 13" {
		t.Errorf("locator = %q, want Rule 13", passages[1].Locator)
	}
	if passages[2].Locator != "Rule 14" {
		t.Errorf("locator = %q, want Rule 14", passages[2].Locator)
	}
	if passages[1].Metadata["section_title"] != "Rule 13" {
		t.Errorf("section_title = %v", passages[1].Metadata["section_title"])
	}
	for i, p := range passages {
		if p.Ordinal != i {
			t.Errorf("passage %d has ordinal %d", i, p.Ordinal)
		}
	}
}

func TestChunkMergesShortSections(t *testing.T) {
	ch := New(WithMaxHeadingLevel(2), WithMinCharacters(400))
	doc := document.Document{ID: "colregs-b", Content: colregsPartB}

	passages, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(passages) >= 3 {
		t.Fatalf("expected short sections to merge, got %d passages", len(passages))
	}
}

func TestChunkHeadinglessFallsBack(t *testing.T) {
	ch := New()
	doc := document.Document{
		ID:      "note",
		Content: "Port State control officers may inspect certificates on boarding.",
	}

	passages, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("expected a single passage, got %d", len(passages))
	}
}

func TestChunkOversizedSectionDelegates(t *testing.T) {
	long := "## Rule 10\n\n"
	for i := 0; i < 40; i++ {
		long += "A vessel using a traffic separation scheme shall proceed in the appropriate traffic lane. "
	}
	ch := New(WithMaxHeadingLevel(2), WithMaxCharacters(500), WithMinCharacters(0))

	passages, err := ch.Chunk(context.Background(), document.Document{ID: "tss", Content: long})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(passages) < 2 {
		t.Fatalf("expected oversized section to split, got %d passages", len(passages))
	}
	for i, p := range passages {
		if p.Locator != "Rule 10" {
			t.Errorf("passage %d locator = %q, want Rule 10", i, p.Locator)
		}
	}
}

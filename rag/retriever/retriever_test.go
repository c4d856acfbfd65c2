package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/harborlight/navqa/contrib/vector/inmemory"
	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/reranker"
)

// axisEmbedder projects text onto fixed keyword axes so similarity is
// deterministic and inspectable.
type axisEmbedder struct {
	axes []string
}

func newAxisEmbedder() *axisEmbedder {
	return &axisEmbedder{axes: []string{"look-out", "speed", "discharge", "garbage"}}
}

func (e *axisEmbedder) embed(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.axes))
	for i, axis := range e.axes {
		vec[i] = float32(strings.Count(lower, axis))
	}
	// Avoid the zero vector so cosine similarity stays defined.
	vec = append(vec, 0.01)
	return vec
}

func (e *axisEmbedder) EmbedPassage(_ context.Context, p document.Passage) ([]float32, error) {
	return e.embed(p.Content), nil
}

func (e *axisEmbedder) EmbedQuery(_ context.Context, query string) ([]float32, error) {
	return e.embed(query), nil
}

func testCorpus() []document.Document {
	return []document.Document{
		{
			ID:     "colregs-b",
			Title:  "COLREGs Part B",
			Family: "colregs",
			Content: "Rule 5 Look-out\n\nEvery vessel shall at all times maintain a proper look-out by sight and hearing.\n\nRule 6 Safe speed\n\nEvery vessel shall at all times proceed at a safe speed.",
		},
		{
			ID:     "marpol-v",
			Title:  "MARPOL Annex V",
			Family: "marpol",
			Content: "Regulation 3 Garbage\n\nThe discharge of all garbage into the sea is prohibited except as provided otherwise.",
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	engine, err := New(inmemory.New(), newAxisEmbedder(), chunking.NewProvisionChunker(), reranker.NewCosine(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := engine.Index(context.Background(), testCorpus()...); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	return engine
}

func TestSearchReturnsEvidenceWithProvenance(t *testing.T) {
	engine := newTestEngine(t)

	evidence, err := engine.Search(context.Background(), "proper look-out requirements", nil, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) == 0 {
		t.Fatal("expected evidence")
	}

	top := evidence[0]
	if !strings.Contains(strings.ToLower(top.Text), "look-out") {
		t.Fatalf("top evidence off-topic: %q", top.Text)
	}
	if top.Source != "COLREGs Part B" {
		t.Fatalf("expected document title as source, got %q", top.Source)
	}
	if top.Locator != "Rule 5" {
		t.Fatalf("expected locator Rule 5, got %q", top.Locator)
	}
	if top.ID == "" {
		t.Fatal("evidence must carry a citable ID")
	}
}

func TestSearchHonoursLimit(t *testing.T) {
	engine := newTestEngine(t)

	evidence, err := engine.Search(context.Background(), "look-out and speed and garbage discharge", nil, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) != 1 {
		t.Fatalf("expected exactly 1 item, got %d", len(evidence))
	}
}

func TestSearchFiltersByTopicHints(t *testing.T) {
	engine := newTestEngine(t)

	evidence, err := engine.Search(context.Background(), "discharge of garbage", []string{"marpol"}, 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) == 0 {
		t.Fatal("expected marpol evidence")
	}
	for _, ev := range evidence {
		if ev.Source != "MARPOL Annex V" {
			t.Fatalf("hint filter leaked another family: %+v", ev)
		}
	}
}

func TestSearchIgnoresUnknownHints(t *testing.T) {
	engine := newTestEngine(t)

	// "stcw" is not in the corpus; the hint must not empty the result.
	evidence, err := engine.Search(context.Background(), "safe speed", []string{"stcw"}, 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(evidence) == 0 {
		t.Fatal("unknown hints must be ignored, not fatal")
	}
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Search(context.Background(), "  ", nil, 4); err == nil {
		t.Fatal("expected an error for a blank query")
	}
}

func TestClearDropsIndexedState(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if n, _ := engine.Count(ctx); n == 0 {
		t.Fatal("expected indexed passages before Clear")
	}
	if err := engine.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := engine.Count(ctx); n != 0 {
		t.Fatalf("expected empty index, got %d", n)
	}
	if _, ok := engine.Document("colregs-b"); ok {
		t.Fatal("document metadata survived Clear")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, newAxisEmbedder(), chunking.NewProvisionChunker(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(inmemory.New(), nil, chunking.NewProvisionChunker(), nil); err == nil {
		t.Fatal("expected error for nil embedder")
	}
	if _, err := New(inmemory.New(), newAxisEmbedder(), nil, nil); err == nil {
		t.Fatal("expected error for nil chunker")
	}
}

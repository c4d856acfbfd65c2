package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	vectormem "github.com/harborlight/navqa/contrib/vector/inmemory"
	"github.com/harborlight/navqa/crag"
	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/retriever"
	"github.com/harborlight/navqa/rag/summarizer"
	"github.com/harborlight/navqa/session"
	sessionmem "github.com/harborlight/navqa/session/store/inmemory"
)

// keywordEmbedder projects text onto fixed keyword axes so similarity is
// deterministic without a model.
type keywordEmbedder struct{}

func (keywordEmbedder) embed(text string) []float32 {
	lower := strings.ToLower(text)
	axes := []string{"look-out", "speed", "garbage"}
	vec := make([]float32, 0, len(axes)+1)
	for _, axis := range axes {
		vec = append(vec, float32(strings.Count(lower, axis)))
	}
	return append(vec, 0.01)
}

func (e keywordEmbedder) EmbedPassage(_ context.Context, p document.Passage) ([]float32, error) {
	return e.embed(p.Content), nil
}

func (e keywordEmbedder) EmbedQuery(_ context.Context, query string) ([]float32, error) {
	return e.embed(query), nil
}

// echoGenerator answers with the first evidence passage, cited.
type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, query string, evidence []crag.Evidence) (*crag.Draft, error) {
	if len(evidence) == 0 {
		return nil, fmt.Errorf("no evidence")
	}
	ev := evidence[0]
	return &crag.Draft{
		Text:      fmt.Sprintf("%s [%s]", ev.Text, ev.ID),
		Citations: []string{ev.ID},
	}, nil
}

func gradeClient() llm.Client {
	return llm.ClientFunc(func(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
		return message.NewMessage(message.RoleAssistant, `{"score": 9.0, "rationale": "covers the queried rule"}`), nil
	})
}

func newTestDeps(t *testing.T) (Deps, *session.Manager) {
	t.Helper()

	ret, err := retriever.New(vectormem.New(), keywordEmbedder{}, chunking.NewProvisionChunker(), nil)
	if err != nil {
		t.Fatalf("retriever: %v", err)
	}

	engine, err := crag.New(ret, echoGenerator{}, crag.Backends{Default: gradeClient()},
		crag.WithVerification(false))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	sessions, err := session.NewManager(sessionmem.New())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}

	return Deps{Engine: engine, Retriever: ret, Sessions: sessions}, sessions
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callText(t *testing.T, cs *mcp.ClientSession, tool string, args map[string]any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", tool, err)
	}
	if res.IsError {
		t.Fatalf("call %s returned tool error: %+v", tool, res.Content)
	}
	if len(res.Content) == 0 {
		t.Fatalf("call %s returned no content", tool)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("call %s returned %T, want text", tool, res.Content[0])
	}
	return text.Text
}

func TestServerIndexThenAsk(t *testing.T) {
	deps, _ := newTestDeps(t)
	server, err := NewServer("navqa-test", "0.0.1", deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	cs := connect(t, server)

	out := callText(t, cs, "index_document", map[string]any{
		"id":      "colregs-b",
		"title":   "COLREGs Part B",
		"family":  "colregs",
		"content": "Rule 5 Look-out\n\nEvery vessel shall at all times maintain a proper look-out by sight and hearing.",
	})
	if !strings.Contains(out, "colregs-b") {
		t.Fatalf("unexpected index output %q", out)
	}

	out = callText(t, cs, "corpus_size", nil)
	if strings.HasPrefix(out, "0 ") {
		t.Fatalf("corpus should not be empty: %q", out)
	}

	out = callText(t, cs, "ask_regulations", map[string]any{
		"question": "What does the look-out rule require?",
	})
	if !strings.Contains(strings.ToLower(out), "look-out") {
		t.Fatalf("answer does not mention the rule: %q", out)
	}
}

func TestServerAskRecordsSessionTurns(t *testing.T) {
	deps, sessions := newTestDeps(t)
	server, err := NewServer("navqa-test", "0.0.1", deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	cs := connect(t, server)

	callText(t, cs, "index_document", map[string]any{
		"family":  "colregs",
		"content": "Rule 6 Safe speed\n\nEvery vessel shall at all times proceed at a safe speed.",
	})
	callText(t, cs, "ask_regulations", map[string]any{
		"question":   "What does the safe speed rule say?",
		"session_id": "watchkeeping",
	})

	turns, err := sessions.Context(context.Background(), "watchkeeping")
	if err != nil {
		t.Fatalf("session context: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected user and assistant turns recorded, got %v", turns)
	}
	if !strings.HasPrefix(turns[0], "user: ") || !strings.HasPrefix(turns[1], "assistant: ") {
		t.Fatalf("unexpected turn roles: %v", turns)
	}
}

func TestServerAskRejectsEmptyQuestion(t *testing.T) {
	deps, _ := newTestDeps(t)
	server, err := NewServer("navqa-test", "0.0.1", deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	cs := connect(t, server)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ask_regulations",
		Arguments: map[string]any{"question": "   "},
	})
	if err == nil && !res.IsError {
		t.Fatal("expected an error for a blank question")
	}
}

// stubSummarizer returns one fixed summary per passage.
type stubSummarizer struct{}

func (stubSummarizer) SummarizePassages(_ context.Context, passages []document.Passage) ([]summarizer.Summary, error) {
	out := make([]summarizer.Summary, len(passages))
	for i, p := range passages {
		out[i] = summarizer.Summary{PassageID: p.ID, Text: "condensed " + p.Locator}
	}
	return out, nil
}

func TestServerSummarizeDocument(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Summarizer = stubSummarizer{}
	server, err := NewServer("navqa-test", "0.0.1", deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	cs := connect(t, server)

	out := callText(t, cs, "summarize_document", map[string]any{
		"title":   "COLREGs Part B",
		"content": "Rule 5 Look-out\n\nEvery vessel shall at all times maintain a proper look-out by sight and hearing.",
	})
	if !strings.Contains(out, "condensed") {
		t.Fatalf("expected summaries in output, got %q", out)
	}
}

func TestServerSummarizeToolAbsentWithoutSummarizer(t *testing.T) {
	deps, _ := newTestDeps(t)
	server, err := NewServer("navqa-test", "0.0.1", deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	cs := connect(t, server)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "summarize_document",
		Arguments: map[string]any{"content": "Rule 5 Look-out"},
	})
	if err == nil && !res.IsError {
		t.Fatal("summarize tool should not be registered")
	}
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	if _, err := NewServer("x", "1", Deps{}); err == nil {
		t.Fatal("expected error for missing engine")
	}
}

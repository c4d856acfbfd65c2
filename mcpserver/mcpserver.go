// Package mcpserver exposes the question answering pipeline over the Model
// Context Protocol, so MCP-capable hosts can ask regulation questions and
// index new regulation texts as tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harborlight/navqa/crag"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/pkg/logging"
	"github.com/harborlight/navqa/rag/chunking"
	"github.com/harborlight/navqa/rag/document"
	"github.com/harborlight/navqa/rag/retriever"
	"github.com/harborlight/navqa/rag/summarizer"
	"github.com/harborlight/navqa/session"
)

// Deps wires the server's tools. Sessions may be nil, in which case the
// ask tool runs stateless and ignores session ids. Summarizer is optional;
// when set, a summarize_document tool is registered.
type Deps struct {
	Engine     *crag.Engine
	Retriever  *retriever.Engine
	Sessions   *session.Manager
	Summarizer summarizer.Summarizer
}

// NewServer builds the MCP server with the ask and index tools registered.
func NewServer(name, version string, deps Deps) (*mcp.Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("crag engine is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
		Title:   "maritime regulation QA",
	}, nil)

	addAskTool(server, deps)
	addIndexTool(server, deps)
	addCorpusTool(server, deps)
	if deps.Summarizer != nil {
		addSummarizeTool(server, deps)
	}

	return server, nil
}

type askArgs struct {
	Question  string `json:"question" jsonschema:"Maritime regulation question to answer"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Optional conversation id; prior turns inform retrieval"`
	Role      string `json:"role,omitempty" jsonschema:"Optional audience role, e.g. deck officer or surveyor"`
}

// askResult is the structured payload returned alongside the answer text.
type askResult struct {
	Answer       string   `json:"answer"`
	Citations    []string `json:"citations,omitempty"`
	WasRewritten bool     `json:"was_rewritten"`
	Iterations   int      `json:"iterations"`
	Warnings     []string `json:"warnings,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
}

func addAskTool(server *mcp.Server, deps Deps) {
	logger := logging.WithComponent("mcp_ask")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_regulations",
		Description: "Answer a maritime regulation question with citations into the indexed corpus",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a askArgs) (*mcp.CallToolResult, any, error) {
		question := strings.TrimSpace(a.Question)
		if question == "" {
			return nil, nil, fmt.Errorf("question is required")
		}

		query := crag.Query{Text: question, Role: a.Role}
		sessionID := strings.TrimSpace(a.SessionID)
		if deps.Sessions != nil && sessionID != "" {
			record, err := deps.Sessions.Open(ctx, sessionID)
			if err != nil {
				return nil, nil, fmt.Errorf("open session: %w", err)
			}
			sessionID = record.ID
			turns, err := deps.Sessions.Context(ctx, sessionID)
			if err != nil {
				return nil, nil, fmt.Errorf("session context: %w", err)
			}
			query.Context = turns
		}

		result, err := deps.Engine.Answer(ctx, query)
		if err != nil {
			logger.Error("answer failed", "error", err)
			return nil, nil, err
		}

		if deps.Sessions != nil && sessionID != "" {
			if err := deps.Sessions.AppendTurn(ctx, sessionID, message.RoleUser, question); err != nil {
				logger.Warn("record user turn failed", "error", err)
			} else if err := deps.Sessions.AppendTurn(ctx, sessionID, message.RoleAssistant, result.Answer); err != nil {
				logger.Warn("record assistant turn failed", "error", err)
			}
		}

		payload := askResult{
			Answer:       result.Answer,
			Citations:    result.Citations,
			WasRewritten: result.WasRewritten,
			Iterations:   result.Iterations,
			Warnings:     result.Warnings,
			SessionID:    sessionID,
		}
		return textResult(payload, result.Answer), payload, nil
	})
}

type indexArgs struct {
	ID      string `json:"id,omitempty" jsonschema:"Optional document id; generated when empty"`
	Title   string `json:"title,omitempty" jsonschema:"Human readable document title"`
	Family  string `json:"family,omitempty" jsonschema:"Regulation family such as colregs, solas or marpol"`
	Content string `json:"content" jsonschema:"Full regulation text to index"`
}

func addIndexTool(server *mcp.Server, deps Deps) {
	logger := logging.WithComponent("mcp_index")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_document",
		Description: "Clean, chunk, embed and index a regulation document for retrieval",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a indexArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(a.Content) == "" {
			return nil, nil, fmt.Errorf("content is required")
		}

		doc := document.Document{
			ID:      strings.TrimSpace(a.ID),
			Title:   strings.TrimSpace(a.Title),
			Family:  strings.ToLower(strings.TrimSpace(a.Family)),
			Content: a.Content,
		}
		document.EnsureDocumentID(&doc)

		if err := deps.Retriever.Index(ctx, doc); err != nil {
			logger.Error("index failed", "document", doc.ID, "error", err)
			return nil, nil, err
		}

		payload := map[string]any{"document_id": doc.ID}
		return textResult(payload, fmt.Sprintf("indexed document %s", doc.ID)), payload, nil
	})
}

func addCorpusTool(server *mcp.Server, deps Deps) {
	type args struct{}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "corpus_size",
		Description: "Report how many passages are indexed for retrieval",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ args) (*mcp.CallToolResult, any, error) {
		count, err := deps.Retriever.Count(ctx)
		if err != nil {
			return nil, nil, err
		}
		payload := map[string]any{"passages": count}
		return textResult(payload, fmt.Sprintf("%d passages indexed", count)), payload, nil
	})
}

type summarizeArgs struct {
	Title   string `json:"title,omitempty" jsonschema:"Human readable document title"`
	Content string `json:"content" jsonschema:"Regulation text to summarize"`
}

func addSummarizeTool(server *mcp.Server, deps Deps) {
	logger := logging.WithComponent("mcp_summarize")
	chunker := chunking.NewProvisionChunker()

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_document",
		Description: "Split a regulation text into provisions and summarize each with key points",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a summarizeArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(a.Content) == "" {
			return nil, nil, fmt.Errorf("content is required")
		}

		doc := document.Document{Title: strings.TrimSpace(a.Title), Content: a.Content}
		document.EnsureDocumentID(&doc)
		passages, err := chunker.Chunk(ctx, doc)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk document: %w", err)
		}

		summaries, err := deps.Summarizer.SummarizePassages(ctx, passages)
		if err != nil {
			logger.Error("summarize failed", "document", doc.ID, "error", err)
			return nil, nil, err
		}

		payload := map[string]any{
			"document_id": doc.ID,
			"summaries":   summaries,
		}
		return textResult(payload, fmt.Sprintf("summarized %d passages", len(summaries))), payload, nil
	})
}

// textResult pairs a human readable summary with the JSON payload, which
// keeps plain-text MCP hosts usable.
func textResult(payload any, summary string) *mcp.CallToolResult {
	text := summary
	if raw, err := json.MarshalIndent(payload, "", "  "); err == nil {
		text = summary + "\n" + string(raw)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

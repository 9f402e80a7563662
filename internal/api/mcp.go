package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sqlrag/internal/retrieval"
)

// SchemaSearcher finds the schema documents nearest to a text.
type SchemaSearcher interface {
	RetrieveContext(ctx context.Context, question string, k int) (retrieval.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline Answerer
	Schema   SchemaSearcher
	History  HistoryLister
}

// NewMCPServer creates an MCP server exposing the question pipeline.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sqlrag",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sqlrag answers natural-language questions about a relational database by writing, checking and running read-only queries."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_database",
			mcp.WithDescription("Answer a natural-language question from the database. Returns the answer, the query that was run and its status."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskDatabase(deps),
	)

	s.AddTool(
		mcp.NewTool("search_schema",
			mcp.WithDescription("Find the table descriptions most relevant to a text."),
			mcp.WithString("query", mcp.Description("Search text"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of tables (default 3)")),
		),
		mcpSearchSchema(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"history://recent",
			"Recent Queries",
			mcp.WithResourceDescription("Last 10 questions answered with a freshly generated query"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAskDatabase(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || question == "" {
			return mcpError("question is required"), nil
		}

		out := deps.Pipeline.Answer(ctx, question)
		b, err := json.Marshal(struct {
			Answer    string `json:"answer"`
			Query     string `json:"query"`
			Status    string `json:"status"`
			FromCache bool   `json:"from_cache"`
			RunID     string `json:"run_id"`
		}{out.Answer, out.Query, out.Status, out.FromCache, out.RunID})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchSchema(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}

		res, err := deps.Schema.RetrieveContext(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("schema search failed: %v", err)), nil
		}

		matches := res.Matches
		if matches == nil {
			matches = []retrieval.Match{}
		}
		b, err := json.Marshal(matches)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.History.Recent(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list history: %w", err)
		}

		type entrySummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			Query     string `json:"query"`
		}

		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			summaries[i] = entrySummary{
				ID:        e.ID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
				Question:  e.Question,
				Query:     e.Query,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/sqlrag/internal/history"
	"github.com/kalambet/sqlrag/internal/pipeline"
	"github.com/kalambet/sqlrag/internal/retrieval"
)

type mockSchema struct {
	result retrieval.Result
	err    error
	lastK  int
}

func (m *mockSchema) RetrieveContext(_ context.Context, _ string, k int) (retrieval.Result, error) {
	m.lastK = k
	return m.result, m.err
}

func newTestMCPDeps() MCPDeps {
	d := newTestDeps()
	return MCPDeps{
		Pipeline: d.Pipeline,
		History:  d.History,
		Schema: &mockSchema{result: retrieval.Result{Matches: []retrieval.Match{
			{ID: "table_Entregas", Content: "Table Entregas", Distance: 0.1},
		}}},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_AskDatabase(t *testing.T) {
	handler := mcpAskDatabase(newTestMCPDeps())

	result, err := handler(context.Background(), makeCallToolRequest("ask_database", map[string]interface{}{
		"question": "Which country has the most deliveries?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &body); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if body["answer"] != "Brazil." || body["status"] != "done" {
		t.Errorf("body = %v", body)
	}
}

func TestMCPTool_AskDatabase_MissingQuestion(t *testing.T) {
	handler := mcpAskDatabase(newTestMCPDeps())
	result, err := handler(context.Background(), makeCallToolRequest("ask_database", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing question")
	}
}

func TestMCPTool_SearchSchema(t *testing.T) {
	deps := newTestMCPDeps()
	schema := deps.Schema.(*mockSchema)
	handler := mcpSearchSchema(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_schema", map[string]interface{}{
		"query": "deliveries",
		"limit": 0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema.lastK != 3 {
		t.Errorf("k = %d, want default 3", schema.lastK)
	}

	var matches []retrieval.Match
	if err := json.Unmarshal([]byte(toolText(t, result)), &matches); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "table_Entregas" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestMCPTool_SearchSchema_Error(t *testing.T) {
	deps := newTestMCPDeps()
	deps.Schema = &mockSchema{err: retrieval.ErrRetrievalUnavailable}
	result, _ := mcpSearchSchema(deps)(context.Background(), makeCallToolRequest("search_schema", map[string]interface{}{
		"query": "x",
	}))
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps := newTestMCPDeps()
	deps.History = &mockHistory{entries: []history.Entry{
		{ID: "h1", Question: "q", Query: "SELECT 1", CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}

	contents, err := mcpResourceRecent(deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "history://recent"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var items []map[string]string
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 1 || items[0]["query"] != "SELECT 1" || items[0]["created_at"] != "2024-05-01T00:00:00Z" {
		t.Errorf("items = %v", items)
	}
}

func TestMCPResource_Recent_Error(t *testing.T) {
	deps := newTestMCPDeps()
	deps.History = &mockHistory{err: errors.New("boom")}
	if _, err := mcpResourceRecent(deps)(context.Background(), mcp.ReadResourceRequest{}); err == nil {
		t.Error("expected error")
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	deps := newTestMCPDeps()
	deps.Pipeline = &mockAnswerer{answerFn: func(_ context.Context, q string) pipeline.Outcome {
		mu.Lock()
		calls++
		mu.Unlock()
		return pipeline.Outcome{Question: q, Answer: "ok", Status: "done"}
	}}
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	handler := mcpAskDatabase(deps)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := handler(context.Background(), makeCallToolRequest("ask_database", map[string]interface{}{"question": "q"}))
			if err != nil || res.IsError {
				t.Errorf("call failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

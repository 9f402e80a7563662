//go:build integration

package pipeline

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/sqlrag/internal/engine"
	"github.com/kalambet/sqlrag/internal/execution"
	"github.com/kalambet/sqlrag/internal/explain"
	"github.com/kalambet/sqlrag/internal/history"
	"github.com/kalambet/sqlrag/internal/retrieval"
	"github.com/kalambet/sqlrag/internal/safety"
	"github.com/kalambet/sqlrag/internal/storage"
	"github.com/kalambet/sqlrag/internal/synth"
)

// setupOllamaPipeline wires a pipeline to a running Ollama instance. It
// skips the test when Ollama or the models are missing.
func setupOllamaPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ctx := context.Background()

	baseURL := os.Getenv("SQLRAG_OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	llmModel, embedModel := "llama3.1", "nomic-embed-text"

	eng := engine.NewOllamaEngine(baseURL, engine.GenerationOptions{Temperature: 0})
	if !eng.IsRunning(ctx) {
		t.Skip("Ollama is not running, skipping integration test")
	}
	for _, m := range []string{llmModel, embedModel} {
		if !eng.HasModel(ctx, m) {
			t.Skipf("model %s not installed, skipping integration test", m)
		}
	}
	// The Ollama client shares the default transport; idle keep-alive
	// connections would otherwise trip the leak check.
	t.Cleanup(func() { http.DefaultTransport.(*http.Transport).CloseIdleConnections() })

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	vectors := retrieval.NewSQLiteStore(store.DB())
	embedder := retrieval.NewEmbedder(eng, embedModel)
	cs := retrieval.NewContextStore(vectors, embedder)
	if _, err := cs.Load(ctx, schemaDocs); err != nil {
		t.Fatalf("Load: %v", err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		`CREATE TABLE Entregas (id INTEGER PRIMARY KEY, "País" TEXT, Status TEXT)`,
		`INSERT INTO Entregas ("País", Status) VALUES
			('Brazil', 'Análise'), ('Brazil', 'Análise'), ('Chile', 'Análise'), ('Chile', 'Entregue')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	return New(Deps{
		Context:   cs,
		History:   history.NewCache(vectors, embedder),
		Synth:     synth.New(eng, llmModel, safety.SQLite.Name(), time.Minute),
		Filter:    safety.NewFilter(safety.SQLite, 0),
		Executor:  execution.New(db, "sqlite", execution.Options{Timeout: 10 * time.Second}),
		Explainer: explain.New(eng, llmModel, time.Minute),
		Runs:      store,
		Metrics:   NewMetrics(prometheus.NewRegistry()),
	}, Options{})
}

func TestIntegration_AnswerAndReuse(t *testing.T) {
	p := setupOllamaPipeline(t)
	ctx := context.Background()

	first := p.Answer(ctx, question)
	t.Logf("status=%s query=%q answer=%q", first.Status, first.Query, first.Answer)

	if first.Answer == "" {
		t.Fatal("empty answer")
	}
	if n := len(first.Attempts); n < 1 || n > 2 {
		t.Fatalf("attempts = %d, want 1 or 2", n)
	}
	if first.Status != storage.RunDone {
		t.Skipf("model did not produce a working query (status %s), cannot check reuse", first.Status)
	}

	second := p.Answer(ctx, question)
	if !second.FromCache {
		t.Fatal("repeated question should be served from history")
	}
	if second.Query != first.Query {
		t.Errorf("cached query = %q, want %q", second.Query, first.Query)
	}
}

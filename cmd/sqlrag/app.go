package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/sqlrag/internal/config"
	"github.com/kalambet/sqlrag/internal/engine"
	"github.com/kalambet/sqlrag/internal/execution"
	"github.com/kalambet/sqlrag/internal/explain"
	"github.com/kalambet/sqlrag/internal/history"
	"github.com/kalambet/sqlrag/internal/pipeline"
	"github.com/kalambet/sqlrag/internal/prompt"
	"github.com/kalambet/sqlrag/internal/retrieval"
	"github.com/kalambet/sqlrag/internal/safety"
	"github.com/kalambet/sqlrag/internal/schema"
	"github.com/kalambet/sqlrag/internal/storage"
	"github.com/kalambet/sqlrag/internal/synth"
)

// app holds every long-lived component. It is built once per process and
// passed to whatever needs it.
type app struct {
	cfg      config.Config
	store    *storage.Store
	llm      engine.Engine
	embed    engine.Engine
	embedder *retrieval.Embedder
	schema   *retrieval.ContextStore
	history  *history.Cache
	executor *execution.Executor
	pipeline *pipeline.Pipeline
	registry *prometheus.Registry
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// newEngines builds the generation engine and the embedding engine. They
// share one instance when the providers match.
func newEngines(ctx context.Context, cfg config.Config) (llm, embed engine.Engine, err error) {
	dc := engine.DetectConfig{
		Provider:         cfg.LLM.Provider,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OpenRouterURL:    cfg.OpenRouter.BaseURL,
		GeminiAPIKey:     cfg.Gemini.APIKey,
		OpenRouterAPIKey: cfg.OpenRouter.APIKey,
		Options: engine.GenerationOptions{
			Temperature:     float32(cfg.LLM.Temperature),
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		},
	}
	llm, err = engine.Detect(ctx, dc)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s engine: %w", cfg.LLM.Provider, err)
	}
	if cfg.Embed.Provider == cfg.LLM.Provider {
		return llm, llm, nil
	}
	dc.Provider = cfg.Embed.Provider
	embed, err = engine.Detect(ctx, dc)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s embedding engine: %w", cfg.Embed.Provider, err)
	}
	return llm, embed, nil
}

// ensureModels pulls missing local models for every Ollama-backed engine.
func ensureModels(ctx context.Context, cfg config.Config, llm, embed engine.Engine, w io.Writer) error {
	var models []string
	var p engine.Provisioner
	if prov, ok := llm.(engine.Provisioner); ok {
		p = prov
		models = append(models, cfg.LLM.Model)
	}
	if prov, ok := embed.(engine.Provisioner); ok {
		p = prov
		models = append(models, cfg.Embed.Model)
	}
	if p == nil {
		return nil
	}
	return engine.EnsureReady(ctx, p, w, models...)
}

// newApp opens storage and the target database and wires the pipeline.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	llm, embed, err := newEngines(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	dialect, err := safety.ParseDialect(cfg.Database.Driver)
	if err != nil {
		store.Close()
		return nil, err
	}
	executor, err := execution.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, execution.Options{
		Timeout:    cfg.Timeouts.Execution,
		DisplayCap: cfg.Execution.DisplayCap,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	vectors := retrieval.NewSQLiteStore(store.DB())
	embedder := retrieval.NewEmbedder(embed, cfg.Embed.Model)
	schemaStore := retrieval.NewContextStore(vectors, embedder)
	cache := history.NewCache(vectors, embedder)

	registry := prometheus.NewRegistry()
	p := pipeline.New(pipeline.Deps{
		Context:   schemaStore,
		History:   cache,
		Synth:     synth.New(llm, cfg.LLM.Model, dialect.Name(), cfg.Timeouts.Generation),
		Filter:    safety.NewFilter(dialect, cfg.Safety.RowCap),
		Executor:  executor,
		Explainer: explain.New(llm, cfg.LLM.Model, cfg.Timeouts.Explanation),
		Composer:  prompt.New(0),
		Runs:      store,
		Metrics:   pipeline.NewMetrics(registry),
	}, pipeline.Options{
		TopK:             cfg.Retrieval.TopK,
		Threshold:        cfg.Cache.Threshold,
		RetrievalTimeout: cfg.Timeouts.Retrieval,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		llm:      llm,
		embed:    embed,
		embedder: embedder,
		schema:   schemaStore,
		history:  cache,
		executor: executor,
		pipeline: p,
		registry: registry,
	}, nil
}

// loadSchema embeds the configured schema file into the context store.
// Tables already stored are skipped.
func (a *app) loadSchema(ctx context.Context, path string) (int, error) {
	f, err := schema.Load(path)
	if err != nil {
		return 0, err
	}
	n, err := a.schema.Load(ctx, f.Documents())
	if err != nil {
		return n, fmt.Errorf("loading schema into context store: %w", err)
	}
	return n, nil
}

func (a *app) Close() error {
	var errs []error
	if a.executor != nil {
		errs = append(errs, a.executor.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

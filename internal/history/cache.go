// Package history keeps the append-only log of questions that produced a
// working query, searchable by question similarity.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/sqlrag/internal/retrieval"
)

// Collection is the vector collection holding history entries.
const Collection = "history"

// DefaultThreshold is the cosine distance below which a cached query is
// reused. Distances range from 0 (identical) to 2 (opposite).
const DefaultThreshold = 0.15

// Cache is the similarity-searchable history of answered questions.
type Cache struct {
	store    retrieval.VectorStore
	embedder *retrieval.Embedder

	mu  sync.Mutex
	now func() time.Time
}

// NewCache creates a history cache sharing the schema store's embedder so
// question vectors are comparable.
func NewCache(store retrieval.VectorStore, embedder *retrieval.Embedder) *Cache {
	return &Cache{store: store, embedder: embedder, now: time.Now}
}

// LookupSimilar returns the entry whose question is nearest to question.
// Records whose payload cannot be decoded are treated as a miss.
func (c *Cache) LookupSimilar(ctx context.Context, question string) (Lookup, error) {
	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return Lookup{}, fmt.Errorf("embedding question: %w", err)
	}

	scored, err := c.store.Search(ctx, Collection, vec, 1)
	if err != nil {
		return Lookup{}, fmt.Errorf("searching history: %w", err)
	}
	if len(scored) == 0 {
		return Lookup{}, nil
	}

	nearest := scored[0]
	p, err := decodePayload(nearest.Payload)
	if err != nil {
		slog.Warn("history: ignoring unreadable entry", "id", nearest.ID, "error", err)
		return Lookup{}, nil
	}

	return Lookup{
		Entry: Entry{
			ID:        nearest.ID,
			Question:  p.Question,
			Query:     p.Query,
			CreatedAt: nearest.CreatedAt,
		},
		Distance: nearest.Distance,
		Found:    true,
	}, nil
}

// Append records a successful (question, query) pair under a fresh
// time-ordered id. Appends from one process are serialized.
func (c *Cache) Append(ctx context.Context, question, query string) (Entry, error) {
	question = strings.TrimSpace(question)
	query = strings.TrimSpace(query)
	if question == "" || query == "" {
		return Entry{}, fmt.Errorf("history entry needs both a question and a query")
	}

	body, err := encodePayload(question, query)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding history payload: %w", err)
	}

	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return Entry{}, fmt.Errorf("embedding question: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("generating history id: %w", err)
	}
	entry := Entry{
		ID:        id.String(),
		Question:  question,
		Query:     query,
		CreatedAt: c.now().UTC(),
	}

	err = c.store.Insert(ctx, Collection, []retrieval.Record{{
		ID:        entry.ID,
		Content:   question,
		Payload:   body,
		Embedding: vec,
		CreatedAt: entry.CreatedAt,
	}})
	if err != nil {
		return Entry{}, fmt.Errorf("storing history entry: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first. Unreadable records are
// skipped.
func (c *Cache) Recent(ctx context.Context, limit int) ([]Entry, error) {
	records, err := c.store.Recent(ctx, Collection, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		p, err := decodePayload(r.Payload)
		if err != nil {
			slog.Warn("history: skipping unreadable entry", "id", r.ID, "error", err)
			continue
		}
		entries = append(entries, Entry{ID: r.ID, Question: p.Question, Query: p.Query, CreatedAt: r.CreatedAt})
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx, Collection)
}

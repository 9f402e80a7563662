package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CollectionSchema is the vector collection holding schema documents.
const CollectionSchema = "schema"

// ErrRetrievalUnavailable is returned when the question cannot be embedded or
// searched. Callers proceed without schema context.
var ErrRetrievalUnavailable = errors.New("context retrieval unavailable")

// Document is a free-text description of one table: columns, types, example
// values and join relationships.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Match is one retrieved document with its cosine distance to the question.
type Match struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

// Result holds retrieved documents in ascending distance order.
type Result struct {
	Matches []Match `json:"matches"`
}

// Text concatenates the matched documents, separated by blank lines.
// An empty result yields "".
func (r Result) Text() string {
	parts := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n\n")
}

// ContextStore is the similarity-searchable collection of schema documents.
type ContextStore struct {
	store    VectorStore
	embedder *Embedder
}

// NewContextStore creates a ContextStore over the given vector store.
func NewContextStore(store VectorStore, embedder *Embedder) *ContextStore {
	return &ContextStore{store: store, embedder: embedder}
}

// RetrieveContext returns the k documents nearest to question. An empty
// store yields an empty Result.
func (c *ContextStore) RetrieveContext(ctx context.Context, question string, k int) (Result, error) {
	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	scored, err := c.store.Search(ctx, CollectionSchema, vec, k)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	res := Result{Matches: make([]Match, len(scored))}
	for i, s := range scored {
		res.Matches[i] = Match{ID: s.ID, Content: s.Content, Distance: s.Distance}
	}
	return res, nil
}

// Load embeds and stores the documents whose ids are not present yet.
// Documents already loaded are left untouched. It returns the number of
// documents inserted.
func (c *ContextStore) Load(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return 0, fmt.Errorf("document %d has an empty id", i)
		}
		ids[i] = d.ID
	}
	existing, err := c.store.ExistingIDs(ctx, CollectionSchema, ids)
	if err != nil {
		return 0, fmt.Errorf("checking loaded documents: %w", err)
	}

	seen := make(map[string]bool, len(docs))
	var fresh []Document
	for _, d := range docs {
		if existing[d.ID] || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		fresh = append(fresh, d)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	texts := make([]string, len(fresh))
	for i, d := range fresh {
		texts[i] = d.Content
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding documents: %w", err)
	}

	records := make([]Record, len(fresh))
	for i, d := range fresh {
		records[i] = Record{ID: d.ID, Content: d.Content, Embedding: vecs[i]}
	}
	if err := c.store.Insert(ctx, CollectionSchema, records); err != nil {
		return 0, fmt.Errorf("storing documents: %w", err)
	}
	return len(records), nil
}

// Count returns the number of loaded documents.
func (c *ContextStore) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx, CollectionSchema)
}

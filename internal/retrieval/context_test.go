package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kalambet/sqlrag/internal/engine/enginetest"
)

var testDocs = []Document{
	{ID: "table_Deliveries", Content: "Table Deliveries: columns id, status, country, delivered_at. Status values: Analysis, Shipped, Delivered."},
	{ID: "table_Customers", Content: "Table Customers: columns id, name, email, country."},
	{ID: "table_Invoices", Content: "Table Invoices: columns id, customer_id, amount, issued_at. Joins Customers on customer_id."},
}

func newTestContextStore(t *testing.T, eng *enginetest.Engine) *ContextStore {
	t.Helper()
	return NewContextStore(NewSQLiteStore(openTestDB(t)), NewEmbedder(eng, "nomic-embed-text"))
}

func TestRetrieveContext_EmptyStore(t *testing.T) {
	cs := newTestContextStore(t, &enginetest.Engine{})

	res, err := cs.RetrieveContext(context.Background(), "how many deliveries?", 3)
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Errorf("got %d matches, want 0", len(res.Matches))
	}
	if res.Text() != "" {
		t.Errorf("Text() = %q, want empty", res.Text())
	}
}

func TestRetrieveContext_NearestFirst(t *testing.T) {
	ctx := context.Background()
	cs := newTestContextStore(t, &enginetest.Engine{})

	n, err := cs.Load(ctx, testDocs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 3 {
		t.Fatalf("loaded %d documents, want 3", n)
	}

	res, err := cs.RetrieveContext(ctx, "Table Invoices amount customer_id", 2)
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(res.Matches))
	}
	if res.Matches[0].ID != "table_Invoices" {
		t.Errorf("nearest = %s, want table_Invoices", res.Matches[0].ID)
	}
	if res.Matches[0].Distance > res.Matches[1].Distance {
		t.Errorf("matches not ascending: %v > %v", res.Matches[0].Distance, res.Matches[1].Distance)
	}
	if !strings.HasPrefix(res.Text(), "Table Invoices") || !strings.Contains(res.Text(), "\n\n") {
		t.Errorf("Text() = %q", res.Text())
	}
}

func TestRetrieveContext_KLargerThanStore(t *testing.T) {
	ctx := context.Background()
	cs := newTestContextStore(t, &enginetest.Engine{})
	if _, err := cs.Load(ctx, testDocs); err != nil {
		t.Fatalf("Load: %v", err)
	}

	res, err := cs.RetrieveContext(ctx, "customers", 10)
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(res.Matches) != len(testDocs) {
		t.Errorf("got %d matches, want %d", len(res.Matches), len(testDocs))
	}
}

func TestRetrieveContext_EmbedFailure(t *testing.T) {
	eng := &enginetest.Engine{
		EmbedFn: func(context.Context, string, string) ([]float32, error) {
			return nil, enginetest.ErrEmbedDown
		},
	}
	cs := newTestContextStore(t, eng)

	_, err := cs.RetrieveContext(context.Background(), "anything", 3)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
	if !errors.Is(err, enginetest.ErrEmbedDown) {
		t.Errorf("err = %v, want it to wrap the embed error", err)
	}
}

func TestLoad_SkipsExistingIDs(t *testing.T) {
	ctx := context.Background()
	var embeds atomic.Int32
	eng := &enginetest.Engine{
		EmbedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			embeds.Add(1)
			return enginetest.BagOfWords(text), nil
		},
	}
	cs := newTestContextStore(t, eng)

	if _, err := cs.Load(ctx, testDocs[:2]); err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := []Document{
		{ID: "table_Deliveries", Content: "rewritten description"},
		testDocs[2],
		testDocs[2],
	}
	n, err := cs.Load(ctx, changed)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d, want 1", n)
	}
	if got := embeds.Load(); got != 3 {
		t.Errorf("embedded %d texts, want 3", got)
	}

	count, err := cs.Count(ctx)
	if err != nil || count != 3 {
		t.Errorf("Count = %d, %v; want 3", count, err)
	}

	res, err := cs.RetrieveContext(ctx, testDocs[0].Content, 1)
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if res.Matches[0].Content != testDocs[0].Content {
		t.Errorf("existing document was replaced: %q", res.Matches[0].Content)
	}
}

func TestLoad_RejectsEmptyID(t *testing.T) {
	cs := newTestContextStore(t, &enginetest.Engine{})
	if _, err := cs.Load(context.Background(), []Document{{Content: "x"}}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

package history

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kalambet/sqlrag/internal/engine/enginetest"
	"github.com/kalambet/sqlrag/internal/retrieval"
	"github.com/kalambet/sqlrag/internal/storage"
)

func newTestCache(t *testing.T) (*Cache, *retrieval.SQLiteStore) {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vs := retrieval.NewSQLiteStore(st.DB())
	return NewCache(vs, retrieval.NewEmbedder(&enginetest.Engine{}, "nomic-embed-text")), vs
}

func TestLookupSimilar_EmptyCache(t *testing.T) {
	c, _ := newTestCache(t)

	l, err := c.LookupSimilar(context.Background(), "how many deliveries?")
	if err != nil {
		t.Fatalf("LookupSimilar: %v", err)
	}
	if l.Found {
		t.Errorf("Found = true on empty cache")
	}
	if l.Hit(DefaultThreshold) {
		t.Error("empty cache reported a hit")
	}
	if l.Hit(2.5) {
		t.Error("empty cache reported a hit even with a permissive threshold")
	}
}

func TestAppendThenLookup_ExactQuestionIsHit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	q := "How many deliveries are in Analysis?"
	sql := "SELECT COUNT(*) FROM Deliveries WHERE Status = 'Analysis'"
	e, err := c.Append(ctx, q, sql)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("entry missing id or timestamp: %+v", e)
	}

	l, err := c.LookupSimilar(ctx, q)
	if err != nil {
		t.Fatalf("LookupSimilar: %v", err)
	}
	if !l.Found || l.Distance != 0 {
		t.Fatalf("lookup = %+v, want found at distance 0", l)
	}
	if !l.Hit(DefaultThreshold) {
		t.Error("identical question is not a hit")
	}
	if l.Entry.Query != sql || l.Entry.Question != q || l.Entry.ID != e.ID {
		t.Errorf("entry = %+v", l.Entry)
	}
}

func TestLookupSimilar_UnrelatedQuestionIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if _, err := c.Append(ctx, "total invoice amount per customer", "SELECT customer_id, SUM(amount) FROM Invoices GROUP BY customer_id"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	l, err := c.LookupSimilar(ctx, "which couriers drove yesterday")
	if err != nil {
		t.Fatalf("LookupSimilar: %v", err)
	}
	if !l.Found {
		t.Fatal("expected nearest entry to be reported")
	}
	if l.Hit(DefaultThreshold) {
		t.Errorf("unrelated question hit at distance %v", l.Distance)
	}
}

func TestHit_ThresholdIsStrict(t *testing.T) {
	l := Lookup{Found: true, Distance: 0.15}
	if l.Hit(0.15) {
		t.Error("distance equal to threshold must not hit")
	}
	l.Distance = 0.1499
	if !l.Hit(0.15) {
		t.Error("distance below threshold must hit")
	}
}

func TestLookupSimilar_MalformedPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	c, vs := newTestCache(t)

	q := "broken entry question"
	err := vs.Insert(ctx, Collection, []retrieval.Record{{
		ID:        "legacy-1",
		Content:   q,
		Payload:   "Question: broken entry question Query: SELECT 1",
		Embedding: enginetest.BagOfWords(q),
	}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	l, err := c.LookupSimilar(ctx, q)
	if err != nil {
		t.Fatalf("LookupSimilar: %v", err)
	}
	if l.Found || l.Hit(DefaultThreshold) {
		t.Errorf("malformed entry produced %+v, want miss", l)
	}

	entries, err := c.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Recent returned malformed entry: %+v", entries)
	}
}

func TestAppend_RejectsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Append(context.Background(), "  ", "SELECT 1"); err == nil {
		t.Error("expected error for empty question")
	}
	if _, err := c.Append(context.Background(), "q", ""); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestAppend_ConcurrentUniqueIDs(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Append(ctx, fmt.Sprintf("question number %d", i), fmt.Sprintf("SELECT %d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	count, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != n {
		t.Errorf("Count = %d, want %d", count, n)
	}

	entries, err := c.Recent(ctx, n)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	seen := make(map[string]bool, n)
	for _, e := range entries {
		if seen[e.ID] {
			t.Errorf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	for i := range 3 {
		if _, err := c.Append(ctx, fmt.Sprintf("question %d", i), fmt.Sprintf("SELECT %d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := c.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Question != "question 2" || entries[1].Question != "question 1" {
		t.Errorf("order = %q, %q", entries[0].Question, entries[1].Question)
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_vectors_collection_created", "idx_runs_created", "idx_runs_status"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestVectorsPrimaryKey verifies that the same id can live in two collections
// but never twice in one.
func TestVectorsPrimaryKey(t *testing.T) {
	s := openTestStore(t)

	insert := `INSERT INTO vectors (collection, id, content, embedding, created_at) VALUES (?, 'x', 'c', X'00000000', '2026-01-01T00:00:00.000000000Z')`
	if _, err := s.DB().Exec(insert, "schema"); err != nil {
		t.Fatalf("insert schema: %v", err)
	}
	if _, err := s.DB().Exec(insert, "history"); err != nil {
		t.Fatalf("insert history: %v", err)
	}
	if _, err := s.DB().Exec(insert, "history"); err == nil {
		t.Fatal("expected duplicate (collection, id) to fail")
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dist := 0.04
	want := Run{
		ID:            "run-001",
		CreatedAt:     time.Date(2026, 5, 4, 10, 30, 0, 123456789, time.UTC),
		Question:      "How many deliveries are in Analysis?",
		FinalQuery:    "SELECT TOP 1000 COUNT(*) FROM Deliveries WHERE Status = 'Analysis'",
		FromCache:     true,
		CacheDistance: &dist,
		Attempts:      `[{"position":1}]`,
		Answer:        "There are 12 deliveries in Analysis.",
		Status:        RunDone,
		Duration:      1500 * time.Millisecond,
	}
	if err := s.SaveRun(ctx, want); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Question != want.Question || got.FinalQuery != want.FinalQuery || got.Answer != want.Answer {
		t.Errorf("text fields mismatch: %+v", got)
	}
	if !got.FromCache || got.CacheDistance == nil || *got.CacheDistance != dist {
		t.Errorf("cache fields mismatch: from_cache=%v distance=%v", got.FromCache, got.CacheDistance)
	}
	if got.Attempts != want.Attempts {
		t.Errorf("Attempts = %q, want %q", got.Attempts, want.Attempts)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.Duration != want.Duration {
		t.Errorf("Duration = %v, want %v", got.Duration, want.Duration)
	}
}

func TestSaveRun_Defaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, Run{ID: "run-min", Question: "q"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, "run-min")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunDone {
		t.Errorf("Status = %q, want %q", got.Status, RunDone)
	}
	if got.Attempts != "[]" {
		t.Errorf("Attempts = %q, want []", got.Attempts)
	}
	if got.CacheDistance != nil {
		t.Errorf("CacheDistance = %v, want nil", *got.CacheDistance)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListRuns_NewestFirstWithFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	statuses := []string{RunDone, RunFailed, RunDone, RunRejected, RunDone}
	for i, st := range statuses {
		err := s.SaveRun(ctx, Run{
			ID:        fmt.Sprintf("run-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Question:  fmt.Sprintf("question %d", i),
			Status:    st,
		})
		if err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 3, "")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-4" || runs[2].ID != "run-2" {
		t.Errorf("unexpected order: %v", runIDs(runs))
	}

	done, err := s.ListRuns(ctx, 10, RunDone)
	if err != nil {
		t.Fatalf("ListRuns(done): %v", err)
	}
	if len(done) != 3 {
		t.Errorf("got %d done runs, want 3", len(done))
	}

	counts, err := s.CountRuns(ctx)
	if err != nil {
		t.Fatalf("CountRuns: %v", err)
	}
	if counts[RunDone] != 3 || counts[RunFailed] != 1 || counts[RunRejected] != 1 {
		t.Errorf("CountRuns = %v", counts)
	}
}

func TestSaveRun_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, Run{ID: "dup", Question: "q"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(ctx, Run{ID: "dup", Question: "q2"}); err == nil {
		t.Fatal("expected error on duplicate run id")
	}
}

func runIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

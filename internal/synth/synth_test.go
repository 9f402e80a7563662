package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/sqlrag/internal/engine"
	"github.com/kalambet/sqlrag/internal/engine/enginetest"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"  SELECT 1 \n", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```SQL\nSELECT a,\n  b FROM t\n```", "SELECT a,\n  b FROM t"},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"```sql SELECT 1```", "SELECT 1"},
		{"```SELECT 1```", "SELECT 1"},
		{"```sql\nSELECT 1", "SELECT 1"},
		{"SELECT 1\n```", "SELECT 1"},
		{"```sql\n\n```", ""},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSynthesize_GenerationMode(t *testing.T) {
	eng := &enginetest.Engine{
		CompleteFn: func(_ context.Context, model string, _ []engine.Message) (engine.Completion, error) {
			if model != "gemini-2.5-flash" {
				t.Errorf("model = %q", model)
			}
			return engine.OK("```sql\nSELECT TOP 1 País FROM Deliveries WHERE Status = 'Analysis'\n```"), nil
		},
	}
	s := New(eng, "gemini-2.5-flash", "T-SQL (SQL Server)", time.Second)

	c := s.Synthesize(context.Background(), "Which country has the most deliveries in Analysis?", "Table: Deliveries.", nil)
	if c.Fallback {
		t.Fatalf("unexpected fallback: %s", c.Reason)
	}
	if c.Query != "SELECT TOP 1 País FROM Deliveries WHERE Status = 'Analysis'" {
		t.Errorf("Query = %q", c.Query)
	}
	if p := eng.LastPrompt(); !strings.Contains(p, "Table: Deliveries.") || strings.Contains(p, "failed_query") {
		t.Errorf("generation prompt wrong:\n%s", p)
	}
}

func TestSynthesize_CorrectionModeCarriesError(t *testing.T) {
	eng := &enginetest.Engine{
		CompleteFn: func(context.Context, string, []engine.Message) (engine.Completion, error) {
			return engine.OK("SELECT AVG(employment_rate_overall) FROM GraduateEmployment"), nil
		},
	}
	s := New(eng, "m", "T-SQL (SQL Server)", time.Second)

	dbErr := "Invalid column name 'employ_rate'."
	c := s.Synthesize(context.Background(), "average employ_rate?", "ctx", &Prior{
		Query: "SELECT AVG(employ_rate) FROM GraduateEmployment",
		Error: dbErr,
	})
	if c.Fallback || !strings.Contains(c.Query, "employment_rate_overall") {
		t.Fatalf("candidate = %+v", c)
	}
	p := eng.LastPrompt()
	if !strings.Contains(p, dbErr) || !strings.Contains(p, "SELECT AVG(employ_rate)") {
		t.Errorf("correction prompt missing failure details:\n%s", p)
	}
}

func TestSynthesize_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, string, []engine.Message) (engine.Completion, error)
	}{
		{"transport error", func(context.Context, string, []engine.Message) (engine.Completion, error) {
			return engine.Completion{}, errors.New("quota exceeded")
		}},
		{"blocked", func(context.Context, string, []engine.Message) (engine.Completion, error) {
			return engine.Blocked("finish reason SAFETY"), nil
		}},
		{"only fences", func(context.Context, string, []engine.Message) (engine.Completion, error) {
			return engine.OK("```sql\n```"), nil
		}},
		{"timeout", func(ctx context.Context, _ string, _ []engine.Message) (engine.Completion, error) {
			<-ctx.Done()
			return engine.Completion{}, ctx.Err()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&enginetest.Engine{CompleteFn: tt.fn}, "m", "SQLite", 20*time.Millisecond)
			c := s.Synthesize(context.Background(), "q", "", nil)
			if !c.Fallback || c.Query != PlaceholderQuery {
				t.Errorf("candidate = %+v, want placeholder fallback", c)
			}
			if c.Reason == "" {
				t.Error("fallback has no reason")
			}
		})
	}
}

// Package synth turns a question and its schema context into a candidate
// query using the language model, in generation or correction mode.
package synth

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/sqlrag/internal/engine"
	"github.com/kalambet/sqlrag/internal/prompt"
)

// PlaceholderQuery stands in for a query the model failed to produce. It
// selects a literal error marker and is never executed.
const PlaceholderQuery = "SELECT 'Error generating SQL' AS Error"

const defaultTimeout = 30 * time.Second

// Prior is the failed attempt fed back in correction mode.
type Prior struct {
	Query string
	Error string
}

// Candidate is the synthesized query. Fallback is set when generation
// failed and Query is PlaceholderQuery; Reason then explains why.
type Candidate struct {
	Query    string
	Fallback bool
	Reason   string
}

// Synthesizer generates candidate queries. It never returns an error: every
// failure becomes a fallback candidate.
type Synthesizer struct {
	engine  engine.Engine
	model   string
	dialect string
	timeout time.Duration
}

// New creates a Synthesizer. dialect is the human-readable SQL dialect name
// used in prompts; timeout <= 0 uses 30s.
func New(e engine.Engine, model, dialect string, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Synthesizer{engine: e, model: model, dialect: dialect, timeout: timeout}
}

// Synthesize returns one candidate query. With prior == nil it runs in
// generation mode; otherwise it asks for a correction of prior.Query given
// prior.Error.
func (s *Synthesizer) Synthesize(ctx context.Context, question, schemaContext string, prior *Prior) Candidate {
	var msgs []engine.Message
	mode := "generate"
	if prior == nil {
		msgs = prompt.Generation(s.dialect, question, schemaContext)
	} else {
		mode = "correct"
		msgs = prompt.Correction(s.dialect, question, schemaContext, prior.Query, prior.Error)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.engine.Complete(callCtx, s.model, msgs)
	if err != nil {
		slog.Warn("synth: model call failed", "mode", mode, "error", err)
		return fallback(err.Error())
	}
	if !c.IsOK() {
		slog.Warn("synth: model returned no usable content", "mode", mode, "reason", c.Reason)
		return fallback(c.Reason)
	}

	query := StripFences(c.Text)
	if query == "" {
		slog.Warn("synth: empty query after cleanup", "mode", mode)
		return fallback("empty query")
	}
	return Candidate{Query: query}
}

func fallback(reason string) Candidate {
	return Candidate{Query: PlaceholderQuery, Fallback: true, Reason: reason}
}

var fence = regexp.MustCompile("(?s)^```(?:[A-Za-z0-9_-]*[ \\t]*\\r?\\n|(?i:sql)[ \\t]+)?(.*?)\\s*```$")

// StripFences removes surrounding markdown code fences (```sql ... ``` or
// ``` ... ```) and whitespace, returning the bare query.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

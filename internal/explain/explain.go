// Package explain turns a result payload into a natural-language answer.
package explain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/sqlrag/internal/engine"
	"github.com/kalambet/sqlrag/internal/prompt"
)

const defaultTimeout = 30 * time.Second

// fallbackPrefix opens the answer returned when the model cannot explain
// the data.
const fallbackPrefix = "There was a problem processing the results. Raw data: "

// Explainer asks the model for a concise answer to a question from a
// result payload.
type Explainer struct {
	engine  engine.Engine
	model   string
	timeout time.Duration
}

// New creates an Explainer. timeout <= 0 uses 30s.
func New(e engine.Engine, model string, timeout time.Duration) *Explainer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Explainer{engine: e, model: model, timeout: timeout}
}

// Explain returns the answer and whether the model produced it. On failure
// it returns a fallback text carrying the truncated payload and false.
func (x *Explainer) Explain(ctx context.Context, question, payload, glossary string) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	c, err := x.engine.Complete(callCtx, x.model, prompt.Explanation(question, payload, glossary))
	if err != nil {
		slog.Warn("explain: model call failed", "error", err)
		return Fallback(payload), false
	}
	if !c.IsOK() {
		slog.Warn("explain: model returned no usable content", "reason", c.Reason)
		return Fallback(payload), false
	}

	text := strings.TrimSpace(c.Text)
	if text == "" {
		return Fallback(payload), false
	}
	return text, true
}

// Fallback is the answer used when no explanation could be produced.
func Fallback(payload string) string {
	return fallbackPrefix + prompt.Truncate(payload, prompt.MaxPayloadChars, "data truncated")
}

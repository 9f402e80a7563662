// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/kalambet/sqlrag/internal/engine"
)

// Dim is the vector size produced by BagOfWords.
const Dim = 64

// Engine is a scripted engine.Engine. CompleteFn and EmbedFn default to a
// canned "SELECT 1" and BagOfWords respectively. Calls are recorded so tests
// can inspect the prompts that were sent.
type Engine struct {
	CompleteFn func(ctx context.Context, model string, messages []engine.Message) (engine.Completion, error)
	EmbedFn    func(ctx context.Context, model, text string) ([]float32, error)

	mu    sync.Mutex
	calls [][]engine.Message
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Complete(ctx context.Context, model string, messages []engine.Message) (engine.Completion, error) {
	e.mu.Lock()
	e.calls = append(e.calls, messages)
	e.mu.Unlock()

	if e.CompleteFn != nil {
		return e.CompleteFn(ctx, model, messages)
	}
	return engine.OK("SELECT 1"), nil
}

func (e *Engine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if e.EmbedFn != nil {
		return e.EmbedFn(ctx, model, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BagOfWords(text), nil
}

// Calls returns a copy of every message list passed to Complete.
func (e *Engine) Calls() [][]engine.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]engine.Message, len(e.calls))
	copy(out, e.calls)
	return out
}

// LastPrompt returns the concatenated content of the most recent Complete call.
func (e *Engine) LastPrompt() string {
	calls := e.Calls()
	if len(calls) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range calls[len(calls)-1] {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// ErrEmbedDown is a convenience error for failing embed backends.
var ErrEmbedDown = errors.New("embedding backend unavailable")

// BagOfWords hashes lower-cased words into a fixed-size count vector.
// Identical texts map to identical vectors; texts sharing words are close.
func BagOfWords(text string) []float32 {
	v := make([]float32, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%Dim]++
	}
	return v
}

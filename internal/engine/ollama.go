package engine

import (
	"context"
	"strings"

	"github.com/kalambet/sqlrag/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine and
// Provisioner interfaces.
type OllamaEngine struct {
	client *ollama.Client
	opts   GenerationOptions
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string, opts GenerationOptions) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), opts: opts}
}

func (e *OllamaEngine) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	resp, err := e.client.Chat(ctx, model, msgs, &ollama.Options{
		Temperature: e.opts.Temperature,
		NumPredict:  e.opts.MaxOutputTokens,
	})
	if err != nil {
		return Completion{}, err
	}

	if resp.DoneReason == "length" {
		return Blocked("output truncated at token limit"), nil
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return Blocked("empty response"), nil
	}
	return OK(text), nil
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

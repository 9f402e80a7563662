package engine

import "context"

// Engine abstracts a language model backend (Gemini, Ollama, or OpenRouter).
// Query synthesis, explanation, and embedding use this interface instead of
// depending on a concrete client.
type Engine interface {
	// Complete sends messages to the given model and returns a tagged result.
	// A non-nil error means the call itself failed (transport, quota, timeout);
	// a Blocked completion means the model answered without usable content.
	Complete(ctx context.Context, model string, messages []Message) (Completion, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Provisioner is implemented by engines that manage locally installed models.
type Provisioner interface {
	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

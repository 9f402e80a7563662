package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/sqlrag/internal/openrouter"
)

// ErrEmbeddingUnsupported is returned by engines that cannot produce embeddings.
var ErrEmbeddingUnsupported = errors.New("embeddings are not supported by this provider")

// OpenRouterEngine implements Engine over the OpenRouter chat completions API.
type OpenRouterEngine struct {
	client *openrouter.Client
	opts   GenerationOptions
}

// NewOpenRouterEngine creates an engine for the given API key. An empty
// baseURL uses the public OpenRouter endpoint.
func NewOpenRouterEngine(apiKey, baseURL string, opts GenerationOptions) (*OpenRouterEngine, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter API key is required")
	}
	return &OpenRouterEngine{
		client: openrouter.NewClientWithBaseURL(apiKey, baseURL),
		opts:   opts,
	}, nil
}

func (e *OpenRouterEngine) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	msgs := make([]openrouter.Message, len(messages))
	for i, m := range messages {
		msgs[i] = openrouter.Message{Role: m.Role, Content: m.Content}
	}

	temp := e.opts.Temperature
	resp, err := e.client.Chat(ctx, openrouter.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   e.opts.MaxOutputTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("openrouter chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Blocked("no choices returned"), nil
	}
	choice := resp.Choices[0]
	switch choice.FinishReason {
	case "length":
		return Blocked("output truncated at token limit"), nil
	case "content_filter":
		return Blocked("content filtered"), nil
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return Blocked("empty response"), nil
	}
	return OK(text), nil
}

func (e *OpenRouterEngine) Embed(context.Context, string, string) ([]float32, error) {
	return nil, ErrEmbeddingUnsupported
}

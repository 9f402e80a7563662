package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiEngine implements Engine on top of the Google Gen AI SDK.
type GeminiEngine struct {
	client *genai.Client
	opts   GenerationOptions
}

// NewGeminiEngine creates a Gemini-backed engine using the Gemini API backend.
func NewGeminiEngine(ctx context.Context, apiKey string, opts GenerationOptions) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEngine{client: client, opts: opts}, nil
}

func (e *GeminiEngine) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	system, contents := splitSystem(messages)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(e.opts.Temperature),
		MaxOutputTokens: int32(e.opts.MaxOutputTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := e.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini generate: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Blocked(fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)), nil
	}
	if len(resp.Candidates) == 0 {
		return Blocked("no candidates returned"), nil
	}
	if fr := resp.Candidates[0].FinishReason; fr != "" && fr != genai.FinishReasonStop {
		return Blocked(fmt.Sprintf("finish reason %s", fr)), nil
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Blocked("empty response"), nil
	}
	return OK(text), nil
}

func (e *GeminiEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	result, err := e.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, errors.New("gemini embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// splitSystem joins system messages into one instruction and converts the
// rest into genai contents. Assistant turns map to the "model" role.
func splitSystem(messages []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

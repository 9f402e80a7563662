package engine

import (
	"context"
	"fmt"
)

// Provider names accepted in configuration.
const (
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

// DetectConfig holds the parameters needed to construct any supported backend.
type DetectConfig struct {
	Provider         string
	OllamaBaseURL    string
	OpenRouterURL    string
	GeminiAPIKey     string
	OpenRouterAPIKey string
	Options          GenerationOptions
}

// Detect builds the Engine for cfg.Provider. An empty provider selects Ollama.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Options), nil
	case ProviderGemini:
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.Options)
	case ProviderOpenRouter:
		return NewOpenRouterEngine(cfg.OpenRouterAPIKey, cfg.OpenRouterURL, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}

package engine

import (
	"context"
	"testing"
)

func TestDetect_Providers(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DetectConfig
		want    string
		wantErr bool
	}{
		{"default is ollama", DetectConfig{OllamaBaseURL: "http://localhost:11434"}, "*engine.OllamaEngine", false},
		{"ollama", DetectConfig{Provider: ProviderOllama, OllamaBaseURL: "http://localhost:11434"}, "*engine.OllamaEngine", false},
		{"openrouter", DetectConfig{Provider: ProviderOpenRouter, OpenRouterAPIKey: "sk-test"}, "*engine.OpenRouterEngine", false},
		{"gemini", DetectConfig{Provider: ProviderGemini, GeminiAPIKey: "test-key"}, "*engine.GeminiEngine", false},
		{"openrouter without key", DetectConfig{Provider: ProviderOpenRouter}, "", true},
		{"gemini without key", DetectConfig{Provider: ProviderGemini}, "", true},
		{"unknown", DetectConfig{Provider: "mlx"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Detect(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %T", e)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got := typeName(e); got != tt.want {
				t.Errorf("Detect returned %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(e Engine) string {
	switch e.(type) {
	case *OllamaEngine:
		return "*engine.OllamaEngine"
	case *OpenRouterEngine:
		return "*engine.OpenRouterEngine"
	case *GeminiEngine:
		return "*engine.GeminiEngine"
	default:
		return "unknown"
	}
}

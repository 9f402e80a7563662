package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Embed      EmbedConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Gemini     GeminiConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Schema     SchemaConfig
	Retrieval  RetrievalConfig
	Cache      CacheConfig
	Safety     SafetyConfig
	Execution  ExecutionConfig
	Timeouts   TimeoutsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
	APIToken   string
}

// LLMConfig selects the model that writes and explains queries.
type LLMConfig struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// EmbedConfig selects the model that embeds schema documents and questions.
type EmbedConfig struct {
	Provider string
	Model    string
}

type OllamaConfig struct {
	BaseURL string
}

type OpenRouterConfig struct {
	BaseURL string
	APIKey  string
}

type GeminiConfig struct {
	APIKey string
}

type StorageConfig struct {
	DataDir string
}

// DatabaseConfig points at the relational store being queried.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

type SchemaConfig struct {
	File string
}

type RetrievalConfig struct {
	TopK int
}

// CacheConfig holds the history reuse threshold, in cosine distance (0..2).
type CacheConfig struct {
	Threshold float64
}

// SafetyConfig holds the row cap injected into read queries, in rows.
type SafetyConfig struct {
	RowCap int
}

// ExecutionConfig holds the number of rows kept in a result payload.
type ExecutionConfig struct {
	DisplayCap int
}

// TimeoutsConfig holds per-call deadlines for each external call.
type TimeoutsConfig struct {
	Retrieval   time.Duration
	Generation  time.Duration
	Execution   time.Duration
	Explanation time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			Provider:        "ollama",
			Model:           "llama3.1",
			Temperature:     0.1,
			MaxOutputTokens: 1024,
		},
		Embed: EmbedConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Schema: SchemaConfig{
			File: "schema.yaml",
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Cache: CacheConfig{
			Threshold: 0.15,
		},
		Safety: SafetyConfig{
			RowCap: 1000,
		},
		Execution: ExecutionConfig{
			DisplayCap: 50,
		},
		Timeouts: TimeoutsConfig{
			Retrieval:   10 * time.Second,
			Generation:  30 * time.Second,
			Execution:   30 * time.Second,
			Explanation: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/sqlrag/config.json, then applies SQLRAG_* environment
// overrides. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var providers = map[string]bool{"ollama": true, "gemini": true, "openrouter": true}

var drivers = map[string]bool{"sqlite": true, "postgres": true, "sqlserver": true}

// Validate checks the values that would otherwise fail deep inside a request.
func (c Config) Validate() error {
	if !providers[c.LLM.Provider] {
		return fmt.Errorf("unknown llm.provider %q (want ollama, gemini or openrouter)", c.LLM.Provider)
	}
	if !providers[c.Embed.Provider] {
		return fmt.Errorf("unknown embed.provider %q (want ollama, gemini or openrouter)", c.Embed.Provider)
	}
	if c.Embed.Provider == "openrouter" {
		return fmt.Errorf("embed.provider openrouter is not supported: OpenRouter has no embeddings endpoint")
	}
	for _, p := range []string{c.LLM.Provider, c.Embed.Provider} {
		switch {
		case p == "gemini" && c.Gemini.APIKey == "":
			return fmt.Errorf("missing required config: Gemini API key. Set it via environment variable SQLRAG_GEMINI_API_KEY")
		case p == "openrouter" && c.OpenRouter.APIKey == "":
			return fmt.Errorf("missing required config: OpenRouter API key. Set it via environment variable SQLRAG_OPENROUTER_API_KEY")
		}
	}
	if !drivers[c.Database.Driver] {
		return fmt.Errorf("unknown database.driver %q (want sqlite, postgres or sqlserver)", c.Database.Driver)
	}
	if c.Cache.Threshold <= 0 || c.Cache.Threshold > 2 {
		return fmt.Errorf("cache.threshold %v out of range (0, 2]", c.Cache.Threshold)
	}
	if c.Safety.RowCap <= 0 {
		return fmt.Errorf("safety.row_cap must be positive, got %d", c.Safety.RowCap)
	}
	if c.Execution.DisplayCap <= 0 {
		return fmt.Errorf("execution.display_cap must be positive, got %d", c.Execution.DisplayCap)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "sqlrag-data"
		}
	}
	return filepath.Join(dir, "sqlrag")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "sqlrag", "config.json")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// specs maps dotted config keys to Config fields and SQLRAG_* variables.
// Secrets are never read from or written to the config file.
var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SQLRAG_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: "SQLRAG_SERVER_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "server.api_token", typ: kString, env: "SQLRAG_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "llm.provider", typ: kString, env: "SQLRAG_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.model", typ: kString, env: "SQLRAG_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "SQLRAG_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.max_output_tokens", typ: kInt, env: "SQLRAG_LLM_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxOutputTokens },
	},
	{
		key: "embed.provider", typ: kString, env: "SQLRAG_EMBED_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Embed.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Embed.Provider },
	},
	{
		key: "embed.model", typ: kString, env: "SQLRAG_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embed.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embed.Model },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SQLRAG_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "openrouter.base_url", typ: kString, env: "SQLRAG_OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.BaseURL },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "SQLRAG_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "gemini.api_key", typ: kString, env: "SQLRAG_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SQLRAG_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "database.driver", typ: kString, env: "SQLRAG_DATABASE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Database.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Database.Driver },
	},
	{
		key: "database.dsn", typ: kString, env: "SQLRAG_DATABASE_DSN",
		apply:   func(cfg *Config, v any) { cfg.Database.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Database.DSN },
	},
	{
		key: "schema.file", typ: kString, env: "SQLRAG_SCHEMA_FILE",
		apply:   func(cfg *Config, v any) { cfg.Schema.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.File },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SQLRAG_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "cache.threshold", typ: kFloat, env: "SQLRAG_CACHE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Cache.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Cache.Threshold },
	},
	{
		key: "safety.row_cap", typ: kInt, env: "SQLRAG_SAFETY_ROW_CAP",
		apply:   func(cfg *Config, v any) { cfg.Safety.RowCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Safety.RowCap },
	},
	{
		key: "execution.display_cap", typ: kInt, env: "SQLRAG_EXECUTION_DISPLAY_CAP",
		apply:   func(cfg *Config, v any) { cfg.Execution.DisplayCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Execution.DisplayCap },
	},
	{
		key: "timeouts.retrieval", typ: kDuration, env: "SQLRAG_TIMEOUTS_RETRIEVAL",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Retrieval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Retrieval },
	},
	{
		key: "timeouts.generation", typ: kDuration, env: "SQLRAG_TIMEOUTS_GENERATION",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Generation = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Generation },
	},
	{
		key: "timeouts.execution", typ: kDuration, env: "SQLRAG_TIMEOUTS_EXECUTION",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Execution = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Execution },
	},
	{
		key: "timeouts.explanation", typ: kDuration, env: "SQLRAG_TIMEOUTS_EXPLANATION",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Explanation = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Explanation },
	},
	{
		key: "log.level", typ: kString, env: "SQLRAG_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts raw text into the value type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

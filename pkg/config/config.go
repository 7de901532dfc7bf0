// Package config loads agent configuration from a JSON file with
// environment overrides, and manages encrypted API-key secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"opsagent/pkg/circuit"
	"opsagent/pkg/pool"
	"opsagent/pkg/retry"
)

// Provider names for the completion model.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// Config is the full agent configuration.
type Config struct {
	// Provider selects the completion backend.
	Provider string `json:"provider"`

	// Model is the completion model name.
	Model string `json:"model"`

	// EmbedModel is the Ollama embedding model. Embeddings always come
	// from Ollama so the agent works without a remote API key.
	EmbedModel string `json:"embed_model"`

	// OllamaHost is the local Ollama server URL.
	OllamaHost string `json:"ollama_host"`

	// DBPath is the SQLite fact database path.
	DBPath string `json:"db_path"`

	// ToolsFile optionally overrides the built-in tool registry (YAML).
	ToolsFile string `json:"tools_file"`

	// ToolBinary is the CLI driven by the tool registry.
	ToolBinary string `json:"tool_binary"`

	// ToolParams supplies values for tool argument placeholders.
	ToolParams map[string]string `json:"tool_params"`

	// Pool sizes the store connection pool.
	Pool pool.Config `json:"pool"`

	// Breaker guards the completion model.
	Breaker circuit.Config `json:"breaker"`

	// LLMRetry wraps completion calls.
	LLMRetry retry.Config `json:"llm_retry"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Provider:   ProviderOllama,
		Model:      "qwen2.5:7b",
		EmbedModel: "nomic-embed-text",
		OllamaHost: "http://localhost:11434",
		DBPath:     "opsagent.db",
		ToolBinary: "opsctl",
		ToolParams: map[string]string{
			"user":   "postgres",
			"db":     "app",
			"target": "core",
		},
		Pool:     pool.DefaultConfig,
		Breaker:  circuit.DefaultConfig,
		LLMRetry: retry.DefaultConfig,
	}
}

// Load reads configuration from path, layered over the defaults and under
// environment overrides. An empty path uses defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays OPSAGENT_* environment variables.
func (c *Config) applyEnv() {
	for env, target := range map[string]*string{
		"OPSAGENT_PROVIDER":    &c.Provider,
		"OPSAGENT_MODEL":       &c.Model,
		"OPSAGENT_EMBED_MODEL": &c.EmbedModel,
		"OPSAGENT_OLLAMA_HOST": &c.OllamaHost,
		"OPSAGENT_DB_PATH":     &c.DBPath,
		"OPSAGENT_TOOLS_FILE":  &c.ToolsFile,
		"OPSAGENT_TOOL_BINARY": &c.ToolBinary,
	} {
		if value := os.Getenv(env); value != "" {
			*target = value
		}
	}
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderOllama, ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.EmbedModel == "" {
		return fmt.Errorf("embed_model cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	return nil
}

// APIKeyEnv returns the environment variable holding the provider's API
// key, empty for providers that need none.
func (c *Config) APIKeyEnv() string {
	switch c.Provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

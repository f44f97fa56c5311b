// Package config handles GovPulse configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/govpulse/config.yaml, /etc/govpulse/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "govpulse", "config.yaml"))
	}

	paths = append(paths, "/etc/govpulse/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all GovPulse configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Agent      AgentConfig      `yaml:"agent"`
	Data       DataConfig       `yaml:"data"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OllamaConfig defines the chat model settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: http://localhost:11434
	Model   string `yaml:"model"`    // Chat model (e.g., llama3.2)
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`    // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"base_url"` // Defaults to ollama.base_url
}

// Duration wraps time.Duration so YAML values can use Go duration
// strings ("30s", "2m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// AgentConfig defines orchestration loop settings.
type AgentConfig struct {
	// MaxIterations caps tool-call rounds per request. The loop
	// terminates with a degraded answer when the cap is hit.
	MaxIterations int `yaml:"max_iterations"`
	// RequestTimeout bounds a single answer call end to end.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// DataConfig defines data file locations.
type DataConfig struct {
	StatsDB     string `yaml:"stats_db"`     // SIMD statistics SQLite file
	PolicyDB    string `yaml:"policy_db"`    // Policy chunk index SQLite file
	FeedbackLog string `yaml:"feedback_log"` // CSV feedback capture file
}

// Load reads and parses a config file, applying defaults for
// anything not set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = cfg.Ollama.BaseURL
	}
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = 5
	}

	return cfg, nil
}

// Default returns a Config with working local defaults.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8000},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Embeddings: EmbeddingsConfig{
			Model: "nomic-embed-text",
		},
		Agent: AgentConfig{
			MaxIterations:  5,
			RequestTimeout: Duration{2 * time.Minute},
		},
		Data: DataConfig{
			StatsDB:     "gov_stats.db",
			PolicyDB:    "policy_index.db",
			FeedbackLog: "feedback_log.csv",
		},
		LogLevel: "info",
	}
}

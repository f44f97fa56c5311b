package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
listen:
  port: 9000
ollama:
  base_url: http://ollama.local:11434
  model: llama3.2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Port != 9000 {
		t.Errorf("Listen.Port = %d, want 9000", cfg.Listen.Port)
	}
	if cfg.Embeddings.BaseURL != "http://ollama.local:11434" {
		t.Errorf("Embeddings.BaseURL = %q, want ollama base_url fallback", cfg.Embeddings.BaseURL)
	}
	if cfg.Embeddings.Model != "nomic-embed-text" {
		t.Errorf("Embeddings.Model = %q, want default nomic-embed-text", cfg.Embeddings.Model)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("Agent.MaxIterations = %d, want default 5", cfg.Agent.MaxIterations)
	}
	if cfg.Data.StatsDB != "gov_stats.db" {
		t.Errorf("Data.StatsDB = %q, want default gov_stats.db", cfg.Data.StatsDB)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
agent:
  max_iterations: 3
  request_timeout: 30s
data:
  stats_db: /var/lib/govpulse/stats.db
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("Agent.MaxIterations = %d, want 3", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.RequestTimeout.Duration != 30*time.Second {
		t.Errorf("Agent.RequestTimeout = %v, want 30s", cfg.Agent.RequestTimeout)
	}
	if cfg.Data.StatsDB != "/var/lib/govpulse/stats.db" {
		t.Errorf("Data.StatsDB = %q", cfg.Data.StatsDB)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for explicit missing path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "ohlcv-analyst/internal/errors"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "GROQ_API_KEY", "ANALYST_MODEL", "ANALYST_BASE_URL", "ANALYST_DATASET", "ANALYST_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestLoad_WritesTemplateAndAppliesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("Expected config.toml to be created: %v", err)
	}

	if cfg.Dataset.Source != SourceCSV || cfg.Dataset.Symbol != "TSLA" {
		t.Errorf("Unexpected dataset config %+v", cfg.Dataset)
	}
	if cfg.Agents.Attempts() != 3 {
		t.Errorf("Expected 3 attempts, got %d", cfg.Agents.Attempts())
	}
	if cfg.Agents.CallTimeout != 30*time.Second || cfg.Agents.RetryDelay != 500*time.Millisecond {
		t.Errorf("Unexpected agent timings %+v", cfg.Agents)
	}
	if cfg.Server.Addr != ":8000" || cfg.Server.RateBurst != 5 || cfg.Server.MaxMessageLen != 4000 {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Logging.FilePath != filepath.Join(dir, "logs", "analyst.log") {
		t.Errorf("Unexpected log path %s", cfg.Logging.FilePath)
	}
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `
[dataset]
source = "sqlite"
sqlite_path = "bars.db"

[agents]
max_retries = 0
call_timeout = "5s"

[server]
rate_limit = 2.5
rate_burst = 1
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Dataset.Source != SourceSQLite || cfg.Dataset.SQLitePath != "bars.db" {
		t.Errorf("Unexpected dataset config %+v", cfg.Dataset)
	}
	if cfg.Agents.Attempts() != 1 || cfg.Agents.CallTimeout != 5*time.Second {
		t.Errorf("Unexpected agent config %+v", cfg.Agents)
	}
	if cfg.Server.RateLimit != 2.5 || cfg.Server.RateBurst != 1 {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("ANALYST_MODEL", "gpt-4o-mini")
	t.Setenv("ANALYST_DATASET", "/data/bars.csv")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agents.APIKey != "groq-key" {
		t.Errorf("GROQ_API_KEY should win, got %q", cfg.Agents.APIKey)
	}
	if cfg.Agents.Model != "gpt-4o-mini" || cfg.Dataset.CSVPath != "/data/bars.csv" {
		t.Errorf("Env overrides not applied: %+v %+v", cfg.Agents, cfg.Dataset)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[dataset]\nsource = \"parquet\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	if !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing csv path", func(c *Config) { c.Dataset.CSVPath = "" }},
		{"missing sqlite path", func(c *Config) { c.Dataset.Source = SourceSQLite; c.Dataset.SQLitePath = "" }},
		{"negative retries", func(c *Config) { c.Agents.MaxRetries = -1 }},
		{"zero call timeout", func(c *Config) { c.Agents.CallTimeout = 0 }},
		{"negative retry delay", func(c *Config) { c.Agents.RetryDelay = -time.Second }},
		{"zero rate limit", func(c *Config) { c.Server.RateLimit = 0 }},
		{"zero burst", func(c *Config) { c.Server.RateBurst = 0 }},
		{"zero message length", func(c *Config) { c.Server.MaxMessageLen = 0 }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestWriteTemplate_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# mine\n"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := WriteTemplate(dir)
	if err != nil || got != path {
		t.Fatalf("WriteTemplate = %s, %v", got, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# mine\n" {
		t.Errorf("Existing config was overwritten: %q", data)
	}
}

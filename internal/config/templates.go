package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# OHLCV Analyst Configuration

[dataset]
# Where bars are loaded from: "csv" or "sqlite"
source = "csv"
# CSV with columns timestamp, open, high, low, close, volume, direction, Support, Resistance
csv_path = "TSLA_data.csv"
# Snapshot written by 'analyst dataset import'
# sqlite_path = "~/.config/ohlcv-analyst/bars.db"
# Instrument name used in prompts
symbol = "TSLA"

[agents]
# Any OpenAI-compatible chat completion endpoint
model = "llama-3.3-70b-versatile"
base_url = "https://api.groq.com/openai/v1"
# Prefer GROQ_API_KEY / OPENAI_API_KEY in the environment or .env
api_key = ""
# Extra attempts per reasoning phase after the first
max_retries = 2
call_timeout = "30s"
retry_delay = "500ms"
# Expose the ungrounded general-knowledge tool
search_context = true
breaker_failures = 5
breaker_cooldown = "30s"

[server]
addr = ":8000"
allowed_origins = ["http://localhost:8501"]
# Per-client token bucket
rate_limit = 1.0
rate_burst = 5
request_timeout = "90s"
max_message_len = 4000

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
`

// createTemplateConfig writes config.toml into configDir unless it already exists.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}
	return nil
}

// WriteTemplate writes the default config.toml into configDir and returns its path.
func WriteTemplate(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := createTemplateConfig(configDir); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// Package config provides configuration management for the analyst.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/logging"
)

// Dataset sources.
const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Dataset DatasetConfig `mapstructure:"dataset"`
	Agents  AgentConfig   `mapstructure:"agents"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DatasetConfig selects where the OHLCV history is loaded from.
type DatasetConfig struct {
	Source     string `mapstructure:"source"` // "csv" or "sqlite"
	CSVPath    string `mapstructure:"csv_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Symbol     string `mapstructure:"symbol"`
}

// AgentConfig holds reasoning component configuration.
type AgentConfig struct {
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	MaxRetries    int           `mapstructure:"max_retries"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	SearchContext bool          `mapstructure:"search_context"`
	// Circuit breaker in front of the reasoning component.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// ServerConfig holds HTTP chat endpoint configuration.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second per client
	RateBurst      int           `mapstructure:"rate_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxMessageLen  int           `mapstructure:"max_message_len"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ohlcv-analyst"
	}
	return filepath.Join(home, ".config", "ohlcv-analyst")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env in the working directory is optional.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("dataset.source", SourceCSV)
	v.SetDefault("dataset.csv_path", "TSLA_data.csv")
	v.SetDefault("dataset.sqlite_path", filepath.Join(configDir, "bars.db"))
	v.SetDefault("dataset.symbol", "TSLA")

	v.SetDefault("agents.model", "llama-3.3-70b-versatile")
	v.SetDefault("agents.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("agents.max_retries", 2)
	v.SetDefault("agents.call_timeout", 30*time.Second)
	v.SetDefault("agents.retry_delay", 500*time.Millisecond)
	v.SetDefault("agents.search_context", true)
	v.SetDefault("agents.breaker_failures", 5)
	v.SetDefault("agents.breaker_cooldown", 30*time.Second)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8501"})
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.max_message_len", 4000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "analyst.log"))
}

func applyEnvOverrides(cfg *Config) {
	// GROQ_API_KEY wins over OPENAI_API_KEY; the default endpoint is Groq's.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Agents.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Agents.APIKey = v
	}
	if v := os.Getenv("ANALYST_MODEL"); v != "" {
		cfg.Agents.Model = v
	}
	if v := os.Getenv("ANALYST_BASE_URL"); v != "" {
		cfg.Agents.BaseURL = v
	}
	if v := os.Getenv("ANALYST_DATASET"); v != "" {
		cfg.Dataset.CSVPath = v
	}
	if v := os.Getenv("ANALYST_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Dataset.Source {
	case SourceCSV:
		if c.Dataset.CSVPath == "" {
			return fmt.Errorf("%w: dataset.csv_path is required for csv source", apperrors.ErrConfigInvalid)
		}
	case SourceSQLite:
		if c.Dataset.SQLitePath == "" {
			return fmt.Errorf("%w: dataset.sqlite_path is required for sqlite source", apperrors.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: invalid dataset source: %q (must be 'csv' or 'sqlite')", apperrors.ErrConfigInvalid, c.Dataset.Source)
	}

	if c.Agents.MaxRetries < 0 {
		return fmt.Errorf("%w: agents.max_retries must be non-negative", apperrors.ErrConfigInvalid)
	}
	if c.Agents.CallTimeout <= 0 {
		return fmt.Errorf("%w: agents.call_timeout must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Agents.RetryDelay < 0 {
		return fmt.Errorf("%w: agents.retry_delay must be non-negative", apperrors.ErrConfigInvalid)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("%w: server.rate_limit and server.rate_burst must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Server.MaxMessageLen <= 0 {
		return fmt.Errorf("%w: server.max_message_len must be positive", apperrors.ErrConfigInvalid)
	}

	return nil
}

// LogConfig converts the logging section to a logging.LogConfig.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.Console = c.Logging.Console
	lc.File = c.Logging.File
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	return lc
}

// Attempts returns the total number of reasoning attempts per phase.
func (a AgentConfig) Attempts() int {
	return a.MaxRetries + 1
}

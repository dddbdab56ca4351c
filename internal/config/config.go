// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (PARLEY_* runtime override)
//  2. Config file (~/.parley/config.yaml)
//  3. Default values
//
// Sensitive fields (API keys) are masked in MarshalJSON; when adding new
// secret fields, update MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingServerURL indicates no backend endpoint is configured.
	ErrMissingServerURL = errors.New("missing server URL")

	// ErrInvalidServerURL indicates the backend endpoint is not a
	// WebSocket URL.
	ErrInvalidServerURL = errors.New("invalid server URL")

	// ErrInvalidFlushInterval indicates the aggregator window is out of
	// range.
	ErrInvalidFlushInterval = errors.New("invalid flush interval")

	// ErrInvalidLogLevel indicates an unrecognized log level.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrIncompleteCustomAPI indicates a custom provider is partially
	// configured.
	ErrIncompleteCustomAPI = errors.New("incomplete custom API configuration")
)

const (
	// MinFlushIntervalMS and MaxFlushIntervalMS bound the content commit
	// window. Below 10 ms batching buys nothing; above 1000 ms the UI
	// visibly lags the stream.
	MinFlushIntervalMS = 10
	MaxFlushIntervalMS = 1000

	defaultFlushIntervalMS = 50
)

// Config stores application configuration.
type Config struct {
	// Backend endpoints.
	ServerURL string `mapstructure:"server_url" json:"server_url"` // ws:// or wss://
	UploadURL string `mapstructure:"upload_url" json:"upload_url"` // attachment upload endpoint
	APIKey    string `mapstructure:"api_key" json:"api_key"`

	// Model selection.
	ModelID            string `mapstructure:"model_id" json:"model_id"`
	SystemInstructions string `mapstructure:"system_instructions" json:"system_instructions"`
	DisableTools       bool   `mapstructure:"disable_tools" json:"disable_tools"`

	// Bring-your-own-key provider. All three must be set together.
	CustomBaseURL string `mapstructure:"custom_base_url" json:"custom_base_url"`
	CustomAPIKey  string `mapstructure:"custom_api_key" json:"custom_api_key"`
	CustomModel   string `mapstructure:"custom_model" json:"custom_model"`

	// Streaming.
	FlushIntervalMS int `mapstructure:"flush_interval_ms" json:"flush_interval_ms"`

	// Logging.
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug | info | warn | error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Dir returns the configuration directory, ~/.parley.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// Load reads configuration from file, environment, and defaults, then
// validates it.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("parley")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{dir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server_url", "ws://localhost:8080/ws")
	viper.SetDefault("upload_url", "http://localhost:8080/upload")
	viper.SetDefault("model_id", "default")
	viper.SetDefault("flush_interval_ms", defaultFlushIntervalMS)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// Validate fails fast on configuration that cannot work at runtime.
func (c *Config) Validate() error {
	switch {
	case c.ServerURL == "":
		return ErrMissingServerURL
	case !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://"):
		return fmt.Errorf("%w: %q must use ws:// or wss://", ErrInvalidServerURL, c.ServerURL)
	}

	if c.FlushIntervalMS < MinFlushIntervalMS || c.FlushIntervalMS > MaxFlushIntervalMS {
		return fmt.Errorf("%w: %d ms, allowed range %d-%d",
			ErrInvalidFlushInterval, c.FlushIntervalMS, MinFlushIntervalMS, MaxFlushIntervalMS)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	custom := 0
	for _, v := range []string{c.CustomBaseURL, c.CustomAPIKey, c.CustomModel} {
		if v != "" {
			custom++
		}
	}
	if custom != 0 && custom != 3 {
		return fmt.Errorf("%w: base URL, API key, and model must all be set", ErrIncompleteCustomAPI)
	}

	return nil
}

// FlushInterval returns the aggregator window as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// Level maps the configured log level to slog.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MarshalJSON masks secrets so a dumped config never leaks keys.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(*c)
	if masked.APIKey != "" {
		masked.APIKey = "***"
	}
	if masked.CustomAPIKey != "" {
		masked.CustomAPIKey = "***"
	}
	return json.Marshal(masked)
}

package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func loadWithHome(t *testing.T) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWithHome(t)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerURL != "ws://localhost:8080/ws" {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.FlushIntervalMS != 50 {
		t.Errorf("FlushIntervalMS = %d, want 50", cfg.FlushIntervalMS)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PARLEY_MODEL_ID", "env-model")
	t.Setenv("PARLEY_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ModelID != "env-model" {
		t.Errorf("ModelID = %q, want env-model", cfg.ModelID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	viper.Reset()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := home + "/.parley"
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	yaml := "server_url: wss://chat.example.com/ws\nmodel_id: file-model\n"
	if err := os.WriteFile(dir+"/config.yaml", []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ServerURL != "wss://chat.example.com/ws" {
		t.Errorf("ServerURL = %q, want file value", cfg.ServerURL)
	}
	if cfg.ModelID != "file-model" {
		t.Errorf("ModelID = %q, want file-model", cfg.ModelID)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		ServerURL:       "wss://example.com/ws",
		FlushIntervalMS: 50,
		LogLevel:        "info",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing server url", func(c *Config) { c.ServerURL = "" }, ErrMissingServerURL},
		{"http server url", func(c *Config) { c.ServerURL = "https://example.com" }, ErrInvalidServerURL},
		{"flush too small", func(c *Config) { c.FlushIntervalMS = 5 }, ErrInvalidFlushInterval},
		{"flush too large", func(c *Config) { c.FlushIntervalMS = 5000 }, ErrInvalidFlushInterval},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, ErrInvalidLogLevel},
		{"partial custom api", func(c *Config) { c.CustomBaseURL = "https://api.example.com" }, ErrIncompleteCustomAPI},
		{"full custom api", func(c *Config) {
			c.CustomBaseURL = "https://api.example.com"
			c.CustomAPIKey = "sk-123"
			c.CustomModel = "m"
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarshalJSONMasksSecrets(t *testing.T) {
	cfg := Config{
		ServerURL:    "wss://example.com/ws",
		APIKey:       "top-secret",
		CustomAPIKey: "sk-private",
	}

	data, err := json.Marshal(&cfg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "top-secret") || strings.Contains(s, "sk-private") {
		t.Fatalf("secrets leaked in JSON: %s", s)
	}
	if !strings.Contains(s, "***") {
		t.Fatalf("expected masked markers in %s", s)
	}
}

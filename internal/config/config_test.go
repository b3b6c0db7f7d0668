// Copyright 2025 Kyungsuk Kim
//
// Configuration unit tests

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// configEnvVars lists every variable applyEnv reads, so tests can start
// from a clean environment.
var configEnvVars = []string{
	"CHATGPT_MCP_CONFIG",
	"CHATGPT_MCP_WINDOW_PATTERNS",
	"CHATGPT_MCP_SEARCH_TIMEOUT",
	"CHATGPT_MCP_DEFAULT_TIMEOUT",
	"CHATGPT_MCP_POLL_INTERVAL",
	"CHATGPT_MCP_TYPING_DELAY",
	"CHATGPT_MCP_RETRY_COUNT",
	"CHATGPT_MCP_CLIPBOARD_THRESHOLD",
	"CHATGPT_MCP_LOG_LEVEL",
	"CHATGPT_MCP_AUDIT_LOG",
	"MCP_TRANSPORT",
	"MCP_HTTP_ADDRESS",
	"MCP_HTTP_SOCKET",
	"MCP_HEARTBEAT_INTERVAL",
	"MCP_CORS_ORIGIN",
	"MCP_RATE_LIMIT",
	"MCP_HTTP_READ_TIMEOUT",
	"MCP_HTTP_WRITE_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Window.TitlePatterns) == 0 || cfg.Window.TitlePatterns[0] != "ChatGPT" {
		t.Errorf("TitlePatterns = %v, want ChatGPT first", cfg.Window.TitlePatterns)
	}
	if cfg.Window.SearchTimeout.Std() != 10*time.Second {
		t.Errorf("SearchTimeout = %v, want 10s", cfg.Window.SearchTimeout.Std())
	}
	if cfg.Automation.DefaultTimeout.Std() != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.Automation.DefaultTimeout.Std())
	}
	if cfg.Automation.ClipboardThreshold != 200 {
		t.Errorf("ClipboardThreshold = %d, want 200", cfg.Automation.ClipboardThreshold)
	}
	if cfg.Automation.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", cfg.Automation.RetryCount)
	}
	if cfg.Server.Transport != TransportStdio {
		t.Errorf("Transport = %s, want stdio", cfg.Server.Transport)
	}
	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("HTTPAddress = %s, want :8080", cfg.Server.HTTPAddress)
	}
	if cfg.Server.RecordCapacity != 1000 {
		t.Errorf("RecordCapacity = %d, want 1000", cfg.Server.RecordCapacity)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[window]
title_patterns = ["ChatGPT Canary"]
search_timeout = "4s"

[automation]
default_timeout = "45s"
clipboard_threshold = 100

[server]
log_level = "debug"
transport = "sse"
http_address = ":9000"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", path, err)
	}

	if len(cfg.Window.TitlePatterns) != 1 || cfg.Window.TitlePatterns[0] != "ChatGPT Canary" {
		t.Errorf("TitlePatterns = %v, want the file's single pattern", cfg.Window.TitlePatterns)
	}
	if cfg.Window.SearchTimeout.Std() != 4*time.Second {
		t.Errorf("SearchTimeout = %v, want 4s", cfg.Window.SearchTimeout.Std())
	}
	if cfg.Automation.DefaultTimeout.Std() != 45*time.Second {
		t.Errorf("DefaultTimeout = %v, want 45s", cfg.Automation.DefaultTimeout.Std())
	}
	if cfg.Automation.ClipboardThreshold != 100 {
		t.Errorf("ClipboardThreshold = %d, want 100", cfg.Automation.ClipboardThreshold)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want sse", cfg.Server.Transport)
	}
	// Unset file keys keep their defaults.
	if cfg.Automation.PollInterval.Std() != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want default 500ms", cfg.Automation.PollInterval.Std())
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load() should fail for a missing config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("CHATGPT_MCP_WINDOW_PATTERNS", "Alpha, Beta ")
	os.Setenv("CHATGPT_MCP_DEFAULT_TIMEOUT", "60s")
	os.Setenv("CHATGPT_MCP_RETRY_COUNT", "5")
	os.Setenv("MCP_TRANSPORT", "sse")
	os.Setenv("MCP_HTTP_ADDRESS", ":9000")
	t.Cleanup(func() {
		os.Unsetenv("CHATGPT_MCP_WINDOW_PATTERNS")
		os.Unsetenv("CHATGPT_MCP_DEFAULT_TIMEOUT")
		os.Unsetenv("CHATGPT_MCP_RETRY_COUNT")
		os.Unsetenv("MCP_TRANSPORT")
		os.Unsetenv("MCP_HTTP_ADDRESS")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"Alpha", "Beta"}
	if len(cfg.Window.TitlePatterns) != 2 || cfg.Window.TitlePatterns[0] != want[0] || cfg.Window.TitlePatterns[1] != want[1] {
		t.Errorf("TitlePatterns = %v, want %v (trimmed)", cfg.Window.TitlePatterns, want)
	}
	if cfg.Automation.DefaultTimeout.Std() != 60*time.Second {
		t.Errorf("DefaultTimeout = %v, want 60s", cfg.Automation.DefaultTimeout.Std())
	}
	if cfg.Automation.RetryCount != 5 {
		t.Errorf("RetryCount = %d, want 5", cfg.Automation.RetryCount)
	}
	if cfg.Server.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want sse", cfg.Server.Transport)
	}
	if cfg.Server.HTTPAddress != ":9000" {
		t.Errorf("HTTPAddress = %s, want :9000", cfg.Server.HTTPAddress)
	}
}

func TestLoadEnvFileDiscovery(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "discovered.toml")
	if err := os.WriteFile(path, []byte("[server]\nlog_level = \"warn\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Setenv("CHATGPT_MCP_CONFIG", path)
	t.Cleanup(func() { os.Unsetenv("CHATGPT_MCP_CONFIG") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn from $CHATGPT_MCP_CONFIG", cfg.Server.LogLevel)
	}
}

func TestLoadInvalidEnvValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad transport", "MCP_TRANSPORT", "carrier-pigeon"},
		{"bad retry count", "CHATGPT_MCP_RETRY_COUNT", "not-a-number"},
		{"bad duration", "MCP_HEARTBEAT_INTERVAL", "not-a-duration"},
		{"bad rate limit", "MCP_RATE_LIMIT", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			os.Setenv(tt.key, tt.value)
			t.Cleanup(func() { os.Unsetenv(tt.key) })

			if _, err := Load(""); err == nil {
				t.Errorf("Load() should fail with %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"no title patterns", func(c *Config) { c.Window.TitlePatterns = nil }, true},
		{"blank title pattern", func(c *Config) { c.Window.TitlePatterns = []string{"ChatGPT", "  "} }, true},
		{"zero search timeout", func(c *Config) { c.Window.SearchTimeout = 0 }, true},
		{"zero poll interval", func(c *Config) { c.Automation.PollInterval = 0 }, true},
		{"negative retry count", func(c *Config) { c.Automation.RetryCount = -1 }, true},
		{"max below min timeout", func(c *Config) { c.Automation.MaxTimeout = Duration(time.Second) }, true},
		{"default below min timeout", func(c *Config) { c.Automation.DefaultTimeout = Duration(time.Second) }, true},
		{"default above max timeout", func(c *Config) { c.Automation.DefaultTimeout = Duration(time.Hour) }, true},
		{"zero record capacity", func(c *Config) { c.Server.RecordCapacity = 0 }, true},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, true},
		{"bad transport", func(c *Config) { c.Server.Transport = "grpc" }, true},
		{"http transport", func(c *Config) { c.Server.Transport = TransportHTTP }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", d.Std())
	}

	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "1m30s" {
		t.Errorf("MarshalText = %q, want 1m30s", out)
	}

	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("UnmarshalText should reject a non-duration string")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		want      time.Duration
		wantError bool
	}{
		{"valid duration", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"milliseconds", "500ms", 500 * time.Millisecond, false},
		{"empty fallback", "", 10 * time.Second, false},
		{"invalid error", "invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("TEST_DURATION", tt.envValue)
			defer os.Unsetenv("TEST_DURATION")

			got, err := getEnvAsDuration("TEST_DURATION", 10*time.Second)
			if tt.wantError {
				if err == nil {
					t.Errorf("getEnvAsDuration() expected error for %q", tt.envValue)
				}
				return
			}
			if err != nil {
				t.Errorf("getEnvAsDuration() unexpected error: %v", err)
				return
			}
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		value     string
		want      int
		wantError bool
	}{
		{"42", 42, false},
		{"0", 0, false},
		{"-1", -1, false},
		{"invalid", 0, true},
		{"", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv("TEST_INT", tt.value)
				defer os.Unsetenv("TEST_INT")
			} else {
				os.Unsetenv("TEST_INT")
			}

			got, err := getEnvAsInt("TEST_INT", 10)
			if tt.wantError {
				if err == nil {
					t.Errorf("getEnvAsInt() expected error for %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Errorf("getEnvAsInt() unexpected error: %v", err)
				return
			}
			if got != tt.want {
				t.Errorf("getEnvAsInt(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

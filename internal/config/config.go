// Copyright 2025 Kyungsuk Kim
//
// Configuration package for the Windows ChatGPT MCP server

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML files can use human-readable values
// like "30s" or "1m30s". Implements encoding.TextUnmarshaler.
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TransportType represents the MCP transport type
type TransportType string

const (
	// TransportStdio uses stdin/stdout for communication
	TransportStdio TransportType = "stdio"
	// TransportHTTP uses HTTP/SSE for communication
	TransportHTTP TransportType = "sse"
)

// Config holds the full configuration for the MCP server. It is assembled at
// process start from defaults, an optional TOML file, and environment variable
// overrides, then treated as read-only by every other package.
type Config struct {
	Window     WindowConfig     `toml:"window"`
	Automation AutomationConfig `toml:"automation"`
	Server     ServerConfig     `toml:"server"`
}

// WindowConfig controls how the ChatGPT window is located and focused.
type WindowConfig struct {
	// TitlePatterns is the ordered list of case-insensitive substrings matched
	// against top-level window titles. Two or more distinct matching windows
	// is an error.
	TitlePatterns []string `toml:"title_patterns"`

	// SearchTimeout bounds a single window search.
	SearchTimeout Duration `toml:"search_timeout"`

	// FocusRetries is the number of additional attempts to bring the window
	// to the foreground when verification fails.
	FocusRetries int `toml:"focus_retries"`

	// FocusRetryDelay is the pause between focus attempts.
	FocusRetryDelay Duration `toml:"focus_retry_delay"`

	// MinWidth and MinHeight reject windows too small to be the real client
	// (e.g. tooltip or notification windows that match a title pattern).
	MinWidth  int `toml:"min_width"`
	MinHeight int `toml:"min_height"`
}

// AutomationConfig controls input injection and response capture.
type AutomationConfig struct {
	// TypingDelay is the inter-keystroke delay for the typing strategy.
	TypingDelay Duration `toml:"typing_delay"`

	// ClipboardThreshold is the payload length (in characters) at or above
	// which the clipboard-paste strategy is used instead of typing.
	ClipboardThreshold int `toml:"clipboard_threshold"`

	// PollInterval is the response capture polling cadence.
	PollInterval Duration `toml:"poll_interval"`

	// CaptureGrace is the pause after submit before the first transcript poll,
	// covering the window where the output region does not exist yet.
	CaptureGrace Duration `toml:"capture_grace"`

	// DefaultTimeout applies to send_message when the caller omits a timeout.
	// Caller-supplied timeouts are bounded by MinTimeout and MaxTimeout.
	DefaultTimeout Duration `toml:"default_timeout"`
	MinTimeout     Duration `toml:"min_timeout"`
	MaxTimeout     Duration `toml:"max_timeout"`

	// RetryCount is the number of additional attempts for transient
	// automation failures. Backoff is the pause between attempts.
	RetryCount int           `toml:"retry_count"`
	Backoff    Duration      `toml:"retry_backoff"`

	// SubmitRetries bounds how often the submit action is re-issued while the
	// input field still shows the original text.
	SubmitRetries int `toml:"submit_retries"`

	// MaxResponseLength caps captured response text; longer text is clipped.
	MaxResponseLength int `toml:"max_response_length"`
}

// ServerConfig controls the MCP transport and diagnostics.
type ServerConfig struct {
	Name              string        `toml:"name"`
	LogLevel          string        `toml:"log_level"`
	Transport         TransportType `toml:"transport"`
	HTTPAddress       string        `toml:"http_address"`
	HTTPSocketPath    string        `toml:"http_socket"`
	CORSOrigin        string        `toml:"cors_origin"`
	HeartbeatInterval Duration      `toml:"heartbeat_interval"`
	HTTPReadTimeout   Duration      `toml:"http_read_timeout"`
	HTTPWriteTimeout  Duration      `toml:"http_write_timeout"`
	RateLimit         float64       `toml:"rate_limit"`
	AuditLogPath      string        `toml:"audit_log"`

	// RecordCapacity bounds the diagnostics operation-record ring.
	// RecentErrorCapacity bounds the retained recent-error list.
	RecordCapacity      int `toml:"record_capacity"`
	RecentErrorCapacity int `toml:"recent_error_capacity"`
}

// Version is the server version reported in initialize responses and
// get_debug_info output.
const Version = "1.0.0"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			TitlePatterns: []string{
				"ChatGPT",
				"OpenAI ChatGPT",
				"ChatGPT Desktop",
				"ChatGPT - Google Chrome",
				"ChatGPT - Microsoft Edge",
				"ChatGPT - Mozilla Firefox",
			},
			SearchTimeout:   Duration(10 * time.Second),
			FocusRetries:    3,
			FocusRetryDelay: Duration(time.Second),
			MinWidth:        300,
			MinHeight:       200,
		},
		Automation: AutomationConfig{
			TypingDelay:        Duration(30 * time.Millisecond),
			ClipboardThreshold: 200,
			PollInterval:       Duration(500 * time.Millisecond),
			CaptureGrace:       Duration(time.Second),
			DefaultTimeout:     Duration(30 * time.Second),
			MinTimeout:         Duration(5 * time.Second),
			MaxTimeout:         Duration(300 * time.Second),
			RetryCount:         2,
			Backoff:            Duration(500 * time.Millisecond),
			SubmitRetries:      3,
			MaxResponseLength:  50000,
		},
		Server: ServerConfig{
			Name:                "windows-chatgpt-mcp",
			LogLevel:            "info",
			Transport:           TransportStdio,
			HTTPAddress:         ":8080",
			CORSOrigin:          "*",
			HeartbeatInterval:   Duration(15 * time.Second),
			HTTPReadTimeout:     Duration(30 * time.Second),
			HTTPWriteTimeout:    0, // disabled for SSE compatibility
			RecordCapacity:      1000,
			RecentErrorCapacity: 50,
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path (or $CHATGPT_MCP_CONFIG when path is empty), and environment variable
// overrides, in that order. Invalid configuration fails process start; it is
// never surfaced per-call.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CHATGPT_MCP_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) error {
	var err error

	if v := os.Getenv("CHATGPT_MCP_WINDOW_PATTERNS"); v != "" {
		patterns := strings.Split(v, ",")
		for i := range patterns {
			patterns[i] = strings.TrimSpace(patterns[i])
		}
		cfg.Window.TitlePatterns = patterns
	}

	if err := overrideDuration("CHATGPT_MCP_SEARCH_TIMEOUT", &cfg.Window.SearchTimeout); err != nil {
		return err
	}
	if err := overrideDuration("CHATGPT_MCP_DEFAULT_TIMEOUT", &cfg.Automation.DefaultTimeout); err != nil {
		return err
	}
	if err := overrideDuration("CHATGPT_MCP_POLL_INTERVAL", &cfg.Automation.PollInterval); err != nil {
		return err
	}
	if err := overrideDuration("CHATGPT_MCP_TYPING_DELAY", &cfg.Automation.TypingDelay); err != nil {
		return err
	}
	cfg.Automation.RetryCount, err = getEnvAsInt("CHATGPT_MCP_RETRY_COUNT", cfg.Automation.RetryCount)
	if err != nil {
		return err
	}
	cfg.Automation.ClipboardThreshold, err = getEnvAsInt("CHATGPT_MCP_CLIPBOARD_THRESHOLD", cfg.Automation.ClipboardThreshold)
	if err != nil {
		return err
	}
	cfg.Server.RateLimit, err = getEnvAsFloat("MCP_RATE_LIMIT", cfg.Server.RateLimit)
	if err != nil {
		return err
	}
	if err := overrideDuration("MCP_HEARTBEAT_INTERVAL", &cfg.Server.HeartbeatInterval); err != nil {
		return err
	}
	if err := overrideDuration("MCP_HTTP_READ_TIMEOUT", &cfg.Server.HTTPReadTimeout); err != nil {
		return err
	}
	if err := overrideDuration("MCP_HTTP_WRITE_TIMEOUT", &cfg.Server.HTTPWriteTimeout); err != nil {
		return err
	}

	cfg.Server.LogLevel = getEnv("CHATGPT_MCP_LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.Transport = TransportType(getEnv("MCP_TRANSPORT", string(cfg.Server.Transport)))
	cfg.Server.HTTPAddress = getEnv("MCP_HTTP_ADDRESS", cfg.Server.HTTPAddress)
	cfg.Server.HTTPSocketPath = getEnv("MCP_HTTP_SOCKET", cfg.Server.HTTPSocketPath)
	cfg.Server.CORSOrigin = getEnv("MCP_CORS_ORIGIN", cfg.Server.CORSOrigin)
	cfg.Server.AuditLogPath = getEnv("CHATGPT_MCP_AUDIT_LOG", cfg.Server.AuditLogPath)

	return nil
}

// Validate checks the assembled configuration for values the automation core
// cannot operate with.
func (c *Config) Validate() error {
	if len(c.Window.TitlePatterns) == 0 {
		return fmt.Errorf("window.title_patterns cannot be empty")
	}
	for _, p := range c.Window.TitlePatterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("window.title_patterns contains an empty pattern")
		}
	}
	if c.Window.SearchTimeout <= 0 {
		return fmt.Errorf("window.search_timeout must be positive, got %v", c.Window.SearchTimeout)
	}
	if c.Automation.PollInterval <= 0 {
		return fmt.Errorf("automation.poll_interval must be positive, got %v", c.Automation.PollInterval)
	}
	if c.Automation.RetryCount < 0 {
		return fmt.Errorf("automation.retry_count cannot be negative, got %d", c.Automation.RetryCount)
	}
	if c.Automation.MinTimeout <= 0 || c.Automation.MaxTimeout < c.Automation.MinTimeout {
		return fmt.Errorf("automation timeout bounds invalid: min=%v max=%v",
			c.Automation.MinTimeout, c.Automation.MaxTimeout)
	}
	if c.Automation.DefaultTimeout < c.Automation.MinTimeout || c.Automation.DefaultTimeout > c.Automation.MaxTimeout {
		return fmt.Errorf("automation.default_timeout %v outside [%v, %v]",
			c.Automation.DefaultTimeout, c.Automation.MinTimeout, c.Automation.MaxTimeout)
	}
	if c.Server.RecordCapacity <= 0 {
		return fmt.Errorf("server.record_capacity must be positive, got %d", c.Server.RecordCapacity)
	}

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Server.LogLevel)
	}

	if c.Server.Transport != TransportStdio && c.Server.Transport != TransportHTTP {
		return fmt.Errorf("invalid transport type: %s (must be 'stdio' or 'sse')", c.Server.Transport)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var result int
	_, err := fmt.Sscanf(value, "%d", &result)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected integer)", key, value)
	}
	return result, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var result float64
	_, err := fmt.Sscanf(value, "%g", &result)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected number)", key, value)
	}
	return result, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected duration, e.g., '30s', '5m')", key, value)
	}
	return d, nil
}

// overrideDuration replaces *dst with the parsed value of the named
// environment variable when it is set.
func overrideDuration(key string, dst *Duration) error {
	v, err := getEnvAsDuration(key, dst.Std())
	if err != nil {
		return err
	}
	*dst = Duration(v)
	return nil
}

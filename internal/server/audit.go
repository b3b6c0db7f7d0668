// Copyright 2025 Kyungsuk Kim
//
// Audit logging for MCP tool invocations

package server

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditLogger writes one structured JSON record per tool invocation: tool
// name, redacted arguments, outcome, and duration. Disabled when no file
// path is configured.
type AuditLogger struct {
	logger  *slog.Logger
	file    *os.File
	enabled bool
	mu      sync.RWMutex
}

// sensitiveKeyParts lists argument key fragments whose values are never
// written to the audit log. Matching is case-insensitive on substrings,
// so "api_key" also covers "openai_api_key".
var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
	"authorization",
	"session_id",
	"cookie",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// NewAuditLogger opens an append-only audit log at filePath. An empty path
// disables audit logging entirely.
func NewAuditLogger(filePath string) (*AuditLogger, error) {
	if filePath == "" {
		return &AuditLogger{enabled: false}, nil
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &AuditLogger{
		logger:  slog.New(handler),
		file:    file,
		enabled: true,
	}, nil
}

// Close closes the audit log file if it is open. Safe to call when
// disabled.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		a.enabled = false
		return err
	}
	return nil
}

// IsEnabled reports whether invocations are being written anywhere.
func (a *AuditLogger) IsEnabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// LogToolCall records one tool invocation. entryID ties the audit entry
// to the matching diagnostics record; when the invocation was not
// recorded there, a fresh ID is generated. Sensitive argument values are
// redacted before writing.
func (a *AuditLogger) LogToolCall(entryID, tool string, args json.RawMessage, status string, duration time.Duration) {
	if !a.IsEnabled() {
		return
	}

	a.mu.RLock()
	logger := a.logger
	a.mu.RUnlock()

	if logger == nil {
		return
	}

	if entryID == "" {
		entryID = uuid.NewString()
	}

	logger.Info("tool_invocation",
		slog.String("entry_id", entryID),
		slog.String("tool", tool),
		slog.String("arguments", redactArguments(args)),
		slog.String("status", status),
		slog.Float64("duration_seconds", duration.Seconds()),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// redactArguments renders JSON arguments with sensitive values replaced.
func redactArguments(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "[unparseable]"
	}

	redactMapValues(parsed)

	redacted, err := json.Marshal(parsed)
	if err != nil {
		return "[error]"
	}
	return string(redacted)
}

// redactMapValues recursively redacts sensitive values in a map.
func redactMapValues(m map[string]interface{}) {
	for key, value := range m {
		if isSensitiveKey(key) {
			m[key] = "[REDACTED]"
			continue
		}

		if nested, ok := value.(map[string]interface{}); ok {
			redactMapValues(nested)
		}

		if arr, ok := value.([]interface{}); ok {
			for _, item := range arr {
				if nestedMap, ok := item.(map[string]interface{}); ok {
					redactMapValues(nestedMap)
				}
			}
		}
	}
}

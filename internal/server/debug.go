// Copyright 2025 Kyungsuk Kim
//
// get_debug_info tool handler

package server

import (
	"encoding/json"
	"runtime"
	"time"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/automation"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
)

// recentLogRecords bounds the operation records returned when include_logs
// is set.
const recentLogRecords = 20

// handleGetDebugInfo returns a structured diagnostics snapshot. Reading
// diagnostics is side-effect free: the call itself is not recorded, so two
// consecutive calls with no intervening operations report identical totals.
func (s *MCPServer) handleGetDebugInfo(call *ToolCall) (*ToolResult, error) {
	var params struct {
		IncludeMetrics *bool `json:"include_metrics"`
		IncludeLogs    bool  `json:"include_logs"`
	}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &params); err != nil {
			return nil, automation.ValidationError(call.Name, "arguments", string(call.Arguments), err.Error())
		}
	}
	includeMetrics := params.IncludeMetrics == nil || *params.IncludeMetrics

	stats := s.collector.Snapshot()

	info := map[string]any{
		"server_info": map[string]any{
			"name":           s.cfg.Server.Name,
			"version":        config.Version,
			"uptime_seconds": time.Since(s.startedAt).Seconds(),
			"transport":      string(s.cfg.Server.Transport),
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
		},
		"configuration": map[string]any{
			"window_title_patterns": s.cfg.Window.TitlePatterns,
			"search_timeout":        s.cfg.Window.SearchTimeout.Std().String(),
			"default_timeout":       s.cfg.Automation.DefaultTimeout.Std().String(),
			"poll_interval":         s.cfg.Automation.PollInterval.Std().String(),
			"retry_count":           s.cfg.Automation.RetryCount,
			"clipboard_threshold":   s.cfg.Automation.ClipboardThreshold,
			"log_level":             s.cfg.Server.LogLevel,
		},
		"error_stats": map[string]any{
			"total_errors":  stats.TotalErrors,
			"recent_errors": stats.RecentErrors,
		},
		"session_state": string(s.session.State()),
	}

	if includeMetrics {
		info["performance_metrics"] = map[string]any{
			"overall_stats": map[string]any{
				"total_calls":  stats.TotalOperations,
				"total_errors": stats.TotalErrors,
				"success_rate": stats.SuccessRate,
			},
			"per_tool": stats.PerTool,
		}
	}
	if params.IncludeLogs {
		info["recent_operations"] = s.collector.Recent(recentLogRecords)
	}

	encoded, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}

	return textResult(string(encoded)), nil
}

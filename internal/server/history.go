// Copyright 2025 Kyungsuk Kim
//
// get_conversation_history tool handler

package server

import (
	"context"
	"encoding/json"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/automation"
)

// defaultHistoryLimit applies when the caller omits limit.
const defaultHistoryLimit = 10

// handleGetHistory reads the visible transcript and returns up to limit
// entries as a JSON array, oldest first.
func (s *MCPServer) handleGetHistory(call *ToolCall) (*ToolResult, error) {
	var params struct {
		Limit int `json:"limit"`
	}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &params); err != nil {
			return nil, automation.ValidationError(call.Name, "arguments", string(call.Arguments), err.Error())
		}
	}
	if params.Limit == 0 {
		params.Limit = defaultHistoryLimit
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Automation.DefaultTimeout.Std())
	defer cancel()

	messages, err := s.session.GetHistory(ctx, params.Limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []automation.Message{}
	}

	encoded, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return nil, err
	}

	return textResult(string(encoded)), nil
}

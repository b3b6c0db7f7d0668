// Copyright 2025 Kyungsuk Kim
//
// send_message tool handler

package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/automation"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
)

// handleSendMessage delivers a prompt to the ChatGPT window and returns the
// captured response once it settles. Schema validation has already bounded
// the message length and timeout before this runs.
func (s *MCPServer) handleSendMessage(call *ToolCall) (*ToolResult, error) {
	var params struct {
		Message string  `json:"message"`
		Timeout float64 `json:"timeout"`
	}
	if err := json.Unmarshal(call.Arguments, &params); err != nil {
		return nil, automation.ValidationError(call.Name, "arguments", string(call.Arguments), err.Error())
	}

	timeout := s.cfg.Automation.DefaultTimeout
	if params.Timeout > 0 {
		timeout = config.Duration(time.Duration(params.Timeout * float64(time.Second)))
	}

	// Bound the whole operation so a held session surfaces as busy
	// instead of blocking the dispatcher forever. The window search gets
	// its own slice on top of the capture timeout.
	ctx, cancel := context.WithTimeout(s.ctx, timeout.Std()+s.cfg.Window.SearchTimeout.Std())
	defer cancel()

	reply, err := s.session.SendMessage(ctx, params.Message, timeout)
	if err != nil {
		return nil, err
	}

	log.Printf("send_message: delivered %q, captured %d chars", truncateText(params.Message), len(reply))
	return textResult(reply), nil
}

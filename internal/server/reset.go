// Copyright 2025 Kyungsuk Kim
//
// reset_conversation tool handler

package server

import "context"

// handleResetConversation starts a new conversation in the ChatGPT window
// and confirms the transcript cleared.
func (s *MCPServer) handleResetConversation(call *ToolCall) (*ToolResult, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Automation.DefaultTimeout.Std())
	defer cancel()

	if err := s.session.Reset(ctx); err != nil {
		return nil, err
	}
	return textResult("Conversation reset; transcript is empty."), nil
}

// Copyright 2025 Kyungsuk Kim
//
// MCP server implementation

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/automation"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/diag"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/transport"
)

// protocolVersion is the MCP protocol revision this server speaks.
const protocolVersion = "2024-11-05"

// MCPServer dispatches MCP tool calls to the automation session. It owns
// the session, the diagnostics collector, and the audit log, and wraps
// every tool invocation with validation, duration measurement, and error
// mapping.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type MCPServer struct {
	session   *automation.Session
	collector *diag.Collector
	metrics   *transport.MetricsRegistry
	audit     *AuditLogger
	ctx       context.Context
	cfg       *config.Config
	tools     map[string]*Tool
	cancel    context.CancelFunc
	startedAt time.Time
	mu        sync.RWMutex
}

// Tool represents an MCP tool
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Tool struct {
	Handler     func(*ToolCall) (*ToolResult, error)
	InputSchema map[string]interface{}
	Name        string
	Description string
}

// ToolCall represents a tool call request
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents a tool call result
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents a content item in a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewMCPServer creates an MCP server driving the real Windows desktop.
func NewMCPServer(cfg *config.Config) (*MCPServer, error) {
	return newMCPServer(cfg, automation.NewDriver(), automation.SystemClock{})
}

// newMCPServer wires the server with an explicit driver and clock so tests
// can substitute fakes.
func newMCPServer(cfg *config.Config, driver automation.Driver, clock automation.Clock) (*MCPServer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	audit, err := NewAuditLogger(cfg.Server.AuditLogPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	s := &MCPServer{
		session:   automation.NewSession(driver, clock, cfg.Window, cfg.Automation),
		collector: diag.NewCollector(cfg.Server.RecordCapacity, cfg.Server.RecentErrorCapacity),
		audit:     audit,
		ctx:       ctx,
		cfg:       cfg,
		cancel:    cancel,
		startedAt: time.Now(),
	}

	s.registerTools()

	return s, nil
}

// SetMetrics attaches a Prometheus-style registry so tool invocations are
// reflected on the metrics endpoint. Optional; stdio deployments run
// without one.
func (s *MCPServer) SetMetrics(m *transport.MetricsRegistry) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Shutdown gracefully shuts down the server
func (s *MCPServer) Shutdown() {
	s.cancel()
	if err := s.audit.Close(); err != nil {
		log.Printf("Error closing audit log: %v", err)
	}
	log.Println("Shutting down MCP server...")
}

// registerTools registers all available tools
func (s *MCPServer) registerTools() {
	s.tools = map[string]*Tool{
		"send_message": {
			Name:        "send_message",
			Description: "Send a message to the ChatGPT desktop window and return the response text",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"message": map[string]interface{}{
						"type":        "string",
						"description": "Message text to send",
						"minLength":   1,
						"maxLength":   4000,
					},
					"timeout": map[string]interface{}{
						"type":        "number",
						"description": "Seconds to wait for a stable response (default 30)",
						"minimum":     5,
						"maximum":     300,
					},
				},
				"required": []string{"message"},
			},
			Handler: s.handleSendMessage,
		},
		"get_conversation_history": {
			Name:        "get_conversation_history",
			Description: "Read the visible conversation transcript as ordered role/content/timestamp entries",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of entries to return, most recent kept (default 10)",
						"minimum":     1,
						"maximum":     100,
					},
				},
			},
			Handler: s.handleGetHistory,
		},
		"reset_conversation": {
			Name:        "reset_conversation",
			Description: "Start a new conversation and verify the transcript is empty",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: s.handleResetConversation,
		},
		"get_debug_info": {
			Name:        "get_debug_info",
			Description: "Return server diagnostics: configuration, performance metrics, and recent errors",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"include_metrics": map[string]interface{}{
						"type":        "boolean",
						"description": "Include aggregated performance metrics (default true)",
					},
					"include_logs": map[string]interface{}{
						"type":        "boolean",
						"description": "Include recent operation records (default false)",
					},
				},
			},
			Handler: s.handleGetDebugInfo,
		},
	}
}

// RequestServer is the push side of a transport: it reads requests and
// invokes a handler for each. Both StdioTransport and HTTPTransport
// satisfy it.
type RequestServer interface {
	Serve(handler func(*transport.Message) (*transport.Message, error)) error
}

// Serve handles MCP requests from tr until the transport shuts down.
func (s *MCPServer) Serve(tr RequestServer) error {
	log.Println("MCP server starting...")
	return tr.Serve(func(msg *transport.Message) (*transport.Message, error) {
		return s.HandleRequest(msg), nil
	})
}

// HandleRequest processes a single MCP message and returns its response.
func (s *MCPServer) HandleRequest(msg *transport.Message) *transport.Message {
	switch msg.Method {
	case "initialize":
		return &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  s.initializeResult(),
		}

	case "tools/list":
		s.mu.RLock()
		tools := make([]map[string]interface{}, 0, len(s.tools))
		for _, tool := range s.tools {
			tools = append(tools, map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"inputSchema": tool.InputSchema,
			})
		}
		s.mu.RUnlock()

		result, _ := json.Marshal(map[string]interface{}{"tools": tools})
		return &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  result,
		}

	case "tools/call":
		return s.handleToolCall(msg)

	default:
		return &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error: &transport.ErrorObj{
				Code:    transport.ErrCodeMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", msg.Method),
			},
		}
	}
}

func (s *MCPServer) initializeResult() json.RawMessage {
	result, _ := json.Marshal(map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    s.cfg.Server.Name,
			"version": config.Version,
		},
	})
	return result
}

// handleToolCall validates, dispatches, and records one tools/call request.
// Validation failures never reach the automation session.
func (s *MCPServer) handleToolCall(msg *transport.Message) *transport.Message {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error: &transport.ErrorObj{
				Code:    transport.ErrCodeInvalidRequest,
				Message: fmt.Sprintf("Invalid request: %v", err),
			},
		}
	}

	s.mu.RLock()
	tool, exists := s.tools[params.Name]
	s.mu.RUnlock()

	if !exists {
		return &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error: &transport.ErrorObj{
				Code:    transport.ErrCodeMethodNotFound,
				Message: fmt.Sprintf("Tool not found: %s", params.Name),
			},
		}
	}

	start := time.Now()
	result, err := s.invokeTool(tool, &ToolCall{
		Name:      params.Name,
		Arguments: params.Arguments,
	})
	duration := time.Since(start)

	s.recordOutcome(params.Name, params.Arguments, start, duration, err)

	if err != nil {
		return &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   toErrorObj(err),
		}
	}

	resultMap := map[string]interface{}{
		"content": result.Content,
	}
	if result.IsError {
		resultMap["isError"] = true
	}

	resultBytes, _ := json.Marshal(resultMap)
	return &transport.Message{
		JSONRPC: "2.0",
		ID:      msg.ID,
		Result:  resultBytes,
	}
}

// invokeTool runs schema validation and then the tool handler.
func (s *MCPServer) invokeTool(tool *Tool, call *ToolCall) (*ToolResult, error) {
	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return nil, automation.ValidationError(call.Name, "arguments", string(call.Arguments),
			fmt.Sprintf("arguments must be a JSON object: %v", err))
	}
	if verr := validateToolInput(call.Name, args, tool.InputSchema); verr != nil {
		return nil, verr
	}
	return tool.Handler(call)
}

// recordOutcome feeds the diagnostics collector, the metrics registry, and
// the audit log. get_debug_info is deliberately left out of the collector so
// reading diagnostics does not change the diagnostics being read.
func (s *MCPServer) recordOutcome(tool string, args json.RawMessage, start time.Time, duration time.Duration, err error) {
	status := "success"
	errKind := ""
	if err != nil {
		status = "error"
		errKind = automation.AsError(err).Kind
	}

	var recordID string
	if tool != "get_debug_info" {
		recordID = s.collector.Record(tool, start, duration, errKind)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics != nil {
		metrics.RecordRequest(tool, status, duration)
	}

	s.audit.LogToolCall(recordID, tool, args, status, duration)
}

// decodeArguments parses raw tool arguments into a map for schema
// validation. Absent or null arguments mean an empty object.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

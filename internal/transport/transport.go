// Copyright 2025 Kyungsuk Kim

// Package transport carries JSON-RPC 2.0 messages between the MCP
// server core and its clients, over line-delimited stdio or HTTP/SSE.
package transport

// Standard JSON-RPC 2.0 error codes.
// See: https://www.jsonrpc.org/specification#error_object
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Implementation-defined error codes in the server-reserved range,
// mapped from the automation error categories.
const (
	// ErrCodeAutomation marks a UI interaction failure.
	ErrCodeAutomation = -32000

	// ErrCodeTimeout marks an operation that exhausted its deadline.
	ErrCodeTimeout = -32001

	// ErrCodeConfiguration marks unusable server configuration.
	ErrCodeConfiguration = -32002

	// ErrCodeBusy marks a request rejected because the automation
	// session is held by another operation.
	ErrCodeBusy = -32003
)

// Transport moves JSON-RPC messages. Implementations are safe for
// concurrent use.
//
// StdioTransport supports the pull-based ReadMessage/WriteMessage pair;
// HTTPTransport only supports the push-based Serve(handler) pattern and
// rejects ReadMessage outright. Close is idempotent on both.
type Transport interface {
	// ReadMessage blocks until a message arrives, the peer closes the
	// stream, or the transport is closed locally.
	ReadMessage() (*Message, error)

	// WriteMessage sends a message: to stdout for stdio, broadcast to
	// every connected SSE client for HTTP.
	WriteMessage(msg *Message) error

	// Close releases the transport. Safe to call more than once.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

var (
	_ Transport = (*StdioTransport)(nil)
	_ Transport = (*HTTPTransport)(nil)
)

// Copyright 2025 Kyungsuk Kim
//
// Line-delimited JSON-RPC 2.0 over stdin/stdout.

package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

// errStdinClosed distinguishes orderly peer shutdown from read failures.
var errStdinClosed = errors.New("stdin closed")

// Message is a JSON-RPC 2.0 request or response. Exactly one of
// Method (request) or Result/Error (response) is populated; ID is
// omitted for notifications.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObj       `json:"error,omitempty"`
}

// ErrorObj is a JSON-RPC 2.0 error object. Data carries the structured
// error payload: type, details, and any field/value or partial text.
type ErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StdioTransport speaks one JSON message per line over stdin/stdout.
// Reads and writes are independently serialized so a response can be
// written while the read loop is blocked on the next request.
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStdioTransport wraps the given streams, normally os.Stdin and
// os.Stdout.
func NewStdioTransport(stdin io.Reader, stdout io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: bufio.NewReader(stdin),
		writer: stdout,
	}
}

// ReadMessage reads the next line and decodes it.
func (t *StdioTransport) ReadMessage() (*Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.closed.Load() {
		return nil, errors.New("transport is closed")
	}

	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errStdinClosed
		}
		return nil, fmt.Errorf("read line: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errors.New("empty line received")
	}

	var msg Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

// WriteMessage encodes msg onto a single line.
func (t *StdioTransport) WriteMessage(msg *Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return errors.New("transport is closed")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close marks the transport closed. The underlying streams are owned by
// the caller and are not touched.
func (t *StdioTransport) Close() error {
	t.closed.Store(true)
	return nil
}

// IsClosed reports whether Close has been called.
func (t *StdioTransport) IsClosed() bool {
	return t.closed.Load()
}

// Serve reads messages in a loop and feeds them to handler, writing
// back whatever it returns. It exits cleanly when stdin closes; read
// errors on individual lines are logged and skipped so one malformed
// message cannot kill the server.
func (t *StdioTransport) Serve(handler func(*Message) (*Message, error)) error {
	for {
		msg, err := t.ReadMessage()
		if err != nil {
			if errors.Is(err, errStdinClosed) {
				log.Println("Stdin closed, exiting")
				return nil
			}
			if t.closed.Load() {
				return nil
			}
			log.Printf("Error reading message: %v", err)
			continue
		}

		response, err := handler(msg)
		if err != nil {
			log.Printf("Error handling message: %v", err)
			response = &Message{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Error: &ErrorObj{
					Code:    ErrCodeInternalError,
					Message: err.Error(),
				},
			}
		}
		if response != nil {
			if err := t.WriteMessage(response); err != nil {
				log.Printf("Error writing message: %v", err)
			}
		}
	}
}

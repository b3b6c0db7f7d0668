// Copyright 2025 Kyungsuk Kim
//
// Scripted test doubles for dispatcher tests. The driver mirrors the one
// the automation package tests use, trimmed to what the tool handlers
// exercise.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/automation"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/transport"
)

// fakeClock advances instantly on Sleep so polling loops run to their
// deadlines without real waiting.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// fakeDriver plays back scripted window listings and capture snapshots
// while recording every gesture it receives.
type fakeDriver struct {
	mu sync.Mutex

	windows    []automation.WindowInfo
	captureSeq []string
	captureFn  func(call int) string

	clip string

	listCalls    int
	captureCalls int
	typed        []string
	shortcuts    []automation.Shortcut

	foreground automation.Handle

	// lastCtx remembers the context of the most recent window listing so
	// tests can check what the dispatcher handed the session.
	lastCtx context.Context
}

func newFakeDriver(wins ...automation.WindowInfo) *fakeDriver {
	return &fakeDriver{windows: wins}
}

func (d *fakeDriver) ListWindows(ctx context.Context) ([]automation.WindowInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	d.lastCtx = ctx
	return d.windows, nil
}

func (d *fakeDriver) Focus(ctx context.Context, h automation.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreground = h
	return nil
}

func (d *fakeDriver) IsForeground(h automation.Handle) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground == h, nil
}

func (d *fakeDriver) Exists(h automation.Handle) bool { return true }

func (d *fakeDriver) TypeText(ctx context.Context, text string, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDriver) SendShortcut(ctx context.Context, s automation.Shortcut) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shortcuts = append(d.shortcuts, s)
	return nil
}

func (d *fakeDriver) ReadClipboard() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clip, nil
}

func (d *fakeDriver) WriteClipboard(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clip = text
	return nil
}

func (d *fakeDriver) CaptureText(ctx context.Context, h automation.Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	call := d.captureCalls
	d.captureCalls++
	if d.captureFn != nil {
		return d.captureFn(call), nil
	}
	if len(d.captureSeq) == 0 {
		return "", nil
	}
	text := d.captureSeq[0]
	if len(d.captureSeq) > 1 {
		d.captureSeq = d.captureSeq[1:]
	}
	return text, nil
}

func (d *fakeDriver) InputText(ctx context.Context, h automation.Handle) (string, error) {
	return "", nil
}

func chatWindow() automation.WindowInfo {
	return automation.WindowInfo{Handle: 42, Title: "ChatGPT", Width: 1200, Height: 800}
}

// pingPongDriver scripts a full exchange: the baseline snapshot, then the
// reply streaming in and settling.
func pingPongDriver(reply string) *fakeDriver {
	drv := newFakeDriver(chatWindow())
	drv.foreground = chatWindow().Handle
	baseline := "You: earlier\nChatGPT: earlier reply"
	drv.captureSeq = []string{
		baseline,
		baseline + "\nYou: ping\nChatGPT: " + reply[:1],
		baseline + "\nYou: ping\nChatGPT: " + reply,
		baseline + "\nYou: ping\nChatGPT: " + reply,
	}
	return drv
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Window.SearchTimeout = config.Duration(2 * time.Second)
	return cfg
}

func newTestServer(t *testing.T, drv *fakeDriver) *MCPServer {
	t.Helper()
	s, err := newMCPServer(testConfig(), drv, newFakeClock())
	if err != nil {
		t.Fatalf("newMCPServer: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

// callTool dispatches one tools/call request through HandleRequest.
func callTool(t *testing.T, s *MCPServer, name, arguments string) *transport.Message {
	t.Helper()
	params, err := json.Marshal(map[string]any{
		"name":      name,
		"arguments": json.RawMessage(arguments),
	})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return s.HandleRequest(&transport.Message{
		JSONRPC: "2.0",
		Method:  "tools/call",
		ID:      json.RawMessage(`1`),
		Params:  params,
	})
}

// resultText extracts the first text content from a tools/call result.
func resultText(t *testing.T, msg *transport.Message) string {
	t.Helper()
	if msg.Error != nil {
		t.Fatalf("unexpected error response: %+v", msg.Error)
	}
	var result struct {
		Content []Content `json:"content"`
	}
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	return result.Content[0].Text
}

// errorData decodes the structured data envelope of an error response.
func errorData(t *testing.T, msg *transport.Message) map[string]any {
	t.Helper()
	if msg.Error == nil {
		t.Fatal("expected an error response")
	}
	var data map[string]any
	if len(msg.Error.Data) > 0 {
		if err := json.Unmarshal(msg.Error.Data, &data); err != nil {
			t.Fatalf("unmarshal error data: %v", err)
		}
	}
	return data
}

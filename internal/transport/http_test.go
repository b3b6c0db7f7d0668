// Copyright 2025 Kyungsuk Kim
//
// HTTP/SSE transport unit tests

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestHTTPTransport(t *testing.T, handler func(*Message) (*Message, error)) *HTTPTransport {
	t.Helper()
	tr := NewHTTPTransport(&HTTPTransportConfig{
		Address:           "127.0.0.1:0",
		HeartbeatInterval: time.Minute,
	}, NewMetricsRegistry())
	tr.handler = handler
	return tr
}

func TestHandleMessage(t *testing.T) {
	tr := newTestHTTPTransport(t, func(msg *Message) (*Message, error) {
		return &Message{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage(`{"ok":true}`)}, nil
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	rec := httptest.NewRecorder()
	tr.handleMessage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp Message
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if string(resp.ID) != "1" || resp.Error != nil {
		t.Errorf("response = %+v, want success with id 1", resp)
	}
}

func TestHandleMessageRejectsBadJSON(t *testing.T) {
	tr := newTestHTTPTransport(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	tr.handleMessage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleMessageRejectsGet(t *testing.T) {
	tr := newTestHTTPTransport(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/message", nil)
	rec := httptest.NewRecorder()
	tr.handleMessage(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	tr := newTestHTTPTransport(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	tr.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("health is not valid JSON: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status field = %v, want ok", health["status"])
	}
}

func TestHandleMetrics(t *testing.T) {
	tr := newTestHTTPTransport(t, nil)
	tr.metrics.RecordRequest("send_message", "success", 2*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	tr.handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "mcp_requests_total") {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	tr := newTestHTTPTransport(t, nil)
	handler := tr.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight reached the inner handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/message", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestEventStoreReplay(t *testing.T) {
	store := newEventStore(10)
	for i := 1; i <= 5; i++ {
		store.add(&sseEvent{ID: string(rune('0' + i)), Data: "d"})
	}

	got := store.since("3")
	if len(got) != 2 {
		t.Fatalf("since returned %d events, want 2", len(got))
	}
	if got[0].ID != "4" || got[1].ID != "5" {
		t.Errorf("replayed IDs %s,%s, want 4,5", got[0].ID, got[1].ID)
	}

	if got := store.since("unknown"); got != nil {
		t.Errorf("since(unknown) = %v, want nil", got)
	}
	if got := store.since(""); got != nil {
		t.Errorf("since(empty) = %v, want nil", got)
	}
}

func TestEventStoreEvictsOldest(t *testing.T) {
	store := newEventStore(3)
	for i := 1; i <= 5; i++ {
		store.add(&sseEvent{ID: string(rune('0' + i))})
	}
	if len(store.events) != 3 {
		t.Fatalf("store holds %d events, want 3", len(store.events))
	}
	if store.events[0].ID != "3" {
		t.Errorf("oldest retained = %s, want 3", store.events[0].ID)
	}
}

func TestClientRegistryBroadcast(t *testing.T) {
	var lastCount int
	reg := newClientRegistry(func(n int) { lastCount = n })

	a := reg.add()
	b := reg.add()
	if lastCount != 2 {
		t.Errorf("onSize reported %d, want 2", lastCount)
	}

	reg.broadcast(&sseEvent{ID: "1", Event: "message", Data: "hello"})
	for _, c := range []*sseClient{a, b} {
		select {
		case e := <-c.events:
			if e.Data != "hello" {
				t.Errorf("client %s got %q", c.id, e.Data)
			}
		default:
			t.Errorf("client %s received nothing", c.id)
		}
	}

	reg.remove(a.id)
	if lastCount != 1 {
		t.Errorf("onSize reported %d after remove, want 1", lastCount)
	}
	if _, ok := <-a.events; ok {
		t.Error("removed client's channel not closed")
	}
}

func TestWriteSSEEventMultiline(t *testing.T) {
	var sb strings.Builder
	err := writeSSEEvent(&sb, &sseEvent{ID: "9", Event: "message", Data: "line1\nline2"})
	if err != nil {
		t.Fatalf("writeSSEEvent: %v", err)
	}
	want := "id: 9\nevent: message\ndata: line1\ndata: line2\n\n"
	if sb.String() != want {
		t.Errorf("output = %q, want %q", sb.String(), want)
	}
}

func TestHTTPTransportClose(t *testing.T) {
	tr := newTestHTTPTransport(t, nil)
	if tr.IsClosed() {
		t.Error("transport closed before Close")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !tr.IsClosed() {
		t.Error("IsClosed = false after Close")
	}
	if err := tr.WriteMessage(&Message{JSONRPC: "2.0"}); err == nil {
		t.Error("WriteMessage succeeded on closed transport")
	}
}

// Copyright 2025 Kyungsuk Kim
//
// HTTP/SSE transport: POST /message for requests, GET /events for the
// response stream, plus /health and /metrics.

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPTransportConfig configures the HTTP/SSE transport. SocketPath,
// when set, takes precedence over Address and listens on a Unix domain
// socket. WriteTimeout defaults to 0 because SSE streams are long-lived
// and a server write timeout would sever them.
type HTTPTransportConfig struct {
	Address           string
	SocketPath        string
	CORSOrigin        string
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RateLimit         float64 // requests per second; 0 disables
}

// DefaultHTTPConfig returns the default HTTP transport configuration.
func DefaultHTTPConfig() *HTTPTransportConfig {
	return &HTTPTransportConfig{
		Address:           ":8080",
		CORSOrigin:        "*",
		HeartbeatInterval: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
}

// HTTPTransport serves JSON-RPC over HTTP with SSE response streaming.
type HTTPTransport struct {
	config     *HTTPTransportConfig
	server     *http.Server
	handler    func(*Message) (*Message, error)
	clients    *clientRegistry
	metrics    *MetricsRegistry
	shutdownCh chan struct{}
	eventID    atomic.Uint64
	closed     atomic.Bool
}

// sseEvent is one Server-Sent Event.
type sseEvent struct {
	ID    string
	Event string
	Data  string
}

// sseClient is one connected event-stream consumer.
type sseClient struct {
	id        string
	events    chan *sseEvent
	createdAt time.Time
}

// eventStore retains recent events so reconnecting clients can replay
// what they missed via Last-Event-ID.
type eventStore struct {
	mu      sync.RWMutex
	events  []*sseEvent
	maxSize int
}

func newEventStore(maxSize int) *eventStore {
	return &eventStore{events: make([]*sseEvent, 0, maxSize), maxSize: maxSize}
}

func (s *eventStore) add(e *sseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= s.maxSize {
		s.events = s.events[1:]
	}
	s.events = append(s.events, e)
}

// since returns the events after lastID, or nothing when lastID is
// unknown (too old to replay).
func (s *eventStore) since(lastID string) []*sseEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lastID == "" {
		return nil
	}
	var out []*sseEvent
	found := false
	for _, e := range s.events {
		if found {
			out = append(out, e)
		}
		if e.ID == lastID {
			found = true
		}
	}
	return out
}

// clientRegistry tracks connected SSE clients.
type clientRegistry struct {
	mu     sync.RWMutex
	seq    atomic.Uint64
	byID   map[string]*sseClient
	store  *eventStore
	onSize func(int) // called with the client count after add/remove
}

func newClientRegistry(onSize func(int)) *clientRegistry {
	if onSize == nil {
		onSize = func(int) {}
	}
	return &clientRegistry{
		byID:   make(map[string]*sseClient),
		store:  newEventStore(1000),
		onSize: onSize,
	}
}

func (r *clientRegistry) add() *sseClient {
	r.mu.Lock()
	c := &sseClient{
		id:        fmt.Sprintf("client-%d", r.seq.Add(1)),
		events:    make(chan *sseEvent, 100),
		createdAt: time.Now(),
	}
	r.byID[c.id] = c
	n := len(r.byID)
	r.mu.Unlock()
	r.onSize(n)
	return c
}

func (r *clientRegistry) remove(id string) {
	r.mu.Lock()
	if c, ok := r.byID[id]; ok {
		close(c.events)
		delete(r.byID, id)
	}
	n := len(r.byID)
	r.mu.Unlock()
	r.onSize(n)
}

func (r *clientRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// broadcast stores the event for replay and fans it out. A client whose
// buffer is full loses the event rather than blocking the sender.
func (r *clientRegistry) broadcast(e *sseEvent) {
	r.store.add(e)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		select {
		case c.events <- e:
		default:
			log.Printf("Warning: dropping event %s for client %s (buffer full)", e.ID, c.id)
		}
	}
}

// NewHTTPTransport builds the HTTP/SSE transport. metrics may be nil to
// disable instrumentation and the /metrics endpoint.
func NewHTTPTransport(config *HTTPTransportConfig, metrics *MetricsRegistry) *HTTPTransport {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 15 * time.Second
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}

	t := &HTTPTransport{
		config:     config,
		metrics:    metrics,
		shutdownCh: make(chan struct{}),
	}
	t.clients = newClientRegistry(func(n int) {
		if metrics != nil {
			metrics.SetSSEConnections(n)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/message", t.handleMessage)
	mux.HandleFunc("/events", t.handleSSE)
	mux.HandleFunc("/health", t.handleHealth)
	if metrics != nil {
		mux.HandleFunc("/metrics", t.handleMetrics)
	}

	handler := RateLimitMiddleware(NewRateLimiter(config.RateLimit), mux)
	t.server = &http.Server{
		Handler:      t.corsMiddleware(handler),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return t
}

func (t *HTTPTransport) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", t.config.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if t.handler == nil {
		http.Error(w, "Handler not set", http.StatusInternalServerError)
		return
	}

	response, err := t.handler(&msg)
	if err != nil {
		response = &Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   &ErrorObj{Code: ErrCodeInternalError, Message: err.Error()},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}

	// Streaming clients see the same response on the event channel.
	if response != nil {
		data, _ := json.Marshal(response)
		t.broadcastEvent(string(data))
	}
}

func (t *HTTPTransport) broadcastEvent(data string) {
	t.clients.broadcast(&sseEvent{
		ID:    fmt.Sprintf("%d", t.eventID.Add(1)),
		Event: "message",
		Data:  data,
	})
	if t.metrics != nil {
		t.metrics.RecordSSEEvent()
	}
}

func (t *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := t.clients.add()
	defer t.clients.remove(client.id)
	log.Printf("SSE client connected: %s", client.id)

	// Replay anything the client missed while reconnecting.
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		for _, e := range t.clients.store.since(lastID) {
			if err := writeSSEEvent(w, e); err != nil {
				log.Printf("SSE client %s: replay write error: %v", client.id, err)
				return
			}
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(t.config.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("SSE client disconnected: %s", client.id)
			return
		case <-t.shutdownCh:
			fmt.Fprintf(w, "event: complete\ndata: server shutdown\n\n")
			flusher.Flush()
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				log.Printf("SSE client %s: heartbeat write error: %v", client.id, err)
				return
			}
			flusher.Flush()
		case e, ok := <-client.events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, e); err != nil {
				log.Printf("SSE client %s: write error: %v", client.id, err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent emits one event, prefixing every data line per the SSE
// framing rules.
func writeSSEEvent(w io.Writer, e *sseEvent) error {
	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\n", e.ID, e.Event); err != nil {
		return err
	}
	for _, line := range strings.Split(e.Data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"clients":     t.clients.count(),
		"server_time": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

func (t *HTTPTransport) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := t.metrics.WritePrometheus(w); err != nil {
		log.Printf("Error writing metrics: %v", err)
	}
}

// Serve listens and blocks until the server shuts down.
func (t *HTTPTransport) Serve(handler func(*Message) (*Message, error)) error {
	t.handler = handler

	var listener net.Listener
	var err error
	if t.config.SocketPath != "" {
		if err := os.Remove(t.config.SocketPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove stale socket %s: %v", t.config.SocketPath, err)
		}
		listener, err = net.Listen("unix", t.config.SocketPath)
		if err != nil {
			return fmt.Errorf("listen on socket %s: %w", t.config.SocketPath, err)
		}
		log.Printf("HTTP/SSE transport listening on unix:%s", t.config.SocketPath)
	} else {
		listener, err = net.Listen("tcp", t.config.Address)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", t.config.Address, err)
		}
		log.Printf("HTTP/SSE transport listening on %s", t.config.Address)
	}

	if err := t.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ReadMessage is unsupported; the HTTP transport delivers messages
// through the Serve(handler) callback.
func (t *HTTPTransport) ReadMessage() (*Message, error) {
	return nil, fmt.Errorf("ReadMessage is not supported by HTTPTransport: use Serve(handler)")
}

// WriteMessage broadcasts msg to every connected SSE client.
func (t *HTTPTransport) WriteMessage(msg *Message) error {
	if t.closed.Load() {
		return fmt.Errorf("transport is closed")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	t.broadcastEvent(string(data))
	return nil
}

// Close shuts the server down and removes any Unix socket file.
func (t *HTTPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	if t.config.SocketPath != "" {
		if err := os.Remove(t.config.SocketPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove socket file %s: %v", t.config.SocketPath, err)
		}
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (t *HTTPTransport) IsClosed() bool {
	return t.closed.Load()
}

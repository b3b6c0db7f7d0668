// Copyright 2025 Kyungsuk Kim
//
// In-memory metrics with Prometheus text exposition.

package transport

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MetricsRegistry collects request counts, latencies, and SSE gauges
// for the server, exported in Prometheus text format on /metrics. It is
// a deliberately small hand-rolled registry; the process has a handful
// of series and no need for a client library.
type MetricsRegistry struct {
	mu         sync.RWMutex
	counters   map[string]*counter
	histograms map[string]*histogram
	gauges     map[string]*gauge
}

// counter is a monotonically increasing count per label combination.
type counter struct {
	mu     sync.RWMutex
	values map[string]uint64
}

// histogram tracks a value distribution over fixed buckets.
type histogram struct {
	mu      sync.RWMutex
	buckets []float64 // upper bounds
	counts  map[string][]uint64
	sums    map[string]float64
	totals  map[string]uint64
}

// gauge is a value that moves both ways.
type gauge struct {
	mu     sync.RWMutex
	values map[string]float64
}

// Latency buckets in seconds. Automation operations run from tens of
// milliseconds (debug info) to minutes (long captures).
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetricsRegistry builds a registry with the server's standard
// metrics pre-registered.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
		gauges:     make(map[string]*gauge),
	}
	m.registerCounter("mcp_requests_total")
	m.registerCounter("mcp_sse_events_sent_total")
	m.registerHistogram("mcp_request_duration_seconds", latencyBuckets)
	m.registerGauge("mcp_sse_connections_active")
	return m
}

func (m *MetricsRegistry) registerCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] = &counter{values: make(map[string]uint64)}
}

func (m *MetricsRegistry) registerHistogram(name string, buckets []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name] = &histogram{
		buckets: buckets,
		counts:  make(map[string][]uint64),
		sums:    make(map[string]float64),
		totals:  make(map[string]uint64),
	}
}

func (m *MetricsRegistry) registerGauge(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = &gauge{values: make(map[string]float64)}
}

// IncrementCounter adds one to a counter. Labels are preformatted as
// key1="v1",key2="v2"; an unknown metric name is ignored.
func (m *MetricsRegistry) IncrementCounter(name, labels string) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.values[labels]++
	c.mu.Unlock()
}

// ObserveHistogram records one observation.
func (m *MetricsRegistry) ObserveHistogram(name, labels string, value float64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.counts[labels]; !exists {
		h.counts[labels] = make([]uint64, len(h.buckets)+1) // +1 for +Inf
	}
	h.sums[labels] += value
	h.totals[labels]++
	// Each observation lands in exactly one slot; cumulative bucket
	// values are computed at exposition time.
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[labels][i]++
			return
		}
	}
	h.counts[labels][len(h.buckets)]++
}

// SetGauge sets a gauge value.
func (m *MetricsRegistry) SetGauge(name, labels string, value float64) {
	m.mu.RLock()
	g, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	g.values[labels] = value
	g.mu.Unlock()
}

// RecordRequest instruments one tool invocation.
func (m *MetricsRegistry) RecordRequest(tool, status string, duration time.Duration) {
	m.IncrementCounter("mcp_requests_total", fmt.Sprintf(`tool=%q,status=%q`, tool, status))
	m.ObserveHistogram("mcp_request_duration_seconds", fmt.Sprintf(`tool=%q`, tool), duration.Seconds())
}

// RecordSSEEvent counts one event sent to the SSE stream.
func (m *MetricsRegistry) RecordSSEEvent() {
	m.IncrementCounter("mcp_sse_events_sent_total", "")
}

// SetSSEConnections records the current SSE client count.
func (m *MetricsRegistry) SetSSEConnections(count int) {
	m.SetGauge("mcp_sse_connections_active", "", float64(count))
}

// errWriter folds repeated Fprintf error checks into one sticky error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// WritePrometheus writes every metric in Prometheus text format, with
// names and labels sorted for deterministic output.
func (m *MetricsRegistry) WritePrometheus(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ew := &errWriter{w: w}

	for _, name := range sortedKeys(m.counters) {
		c := m.counters[name]
		c.mu.RLock()
		ew.printf("# TYPE %s counter\n", name)
		for _, l := range sortedKeys(c.values) {
			if l == "" {
				ew.printf("%s %d\n", name, c.values[l])
			} else {
				ew.printf("%s{%s} %d\n", name, l, c.values[l])
			}
		}
		c.mu.RUnlock()
	}

	for _, name := range sortedKeys(m.gauges) {
		g := m.gauges[name]
		g.mu.RLock()
		ew.printf("# TYPE %s gauge\n", name)
		for _, l := range sortedKeys(g.values) {
			if l == "" {
				ew.printf("%s %g\n", name, g.values[l])
			} else {
				ew.printf("%s{%s} %g\n", name, l, g.values[l])
			}
		}
		g.mu.RUnlock()
	}

	for _, name := range sortedKeys(m.histograms) {
		h := m.histograms[name]
		h.mu.RLock()
		ew.printf("# TYPE %s histogram\n", name)
		for _, l := range sortedKeys(h.counts) {
			prefix := ""
			if l != "" {
				prefix = l + ","
			}
			var cumulative uint64
			for i, bound := range h.buckets {
				cumulative += h.counts[l][i]
				ew.printf("%s_bucket{%sle=\"%g\"} %d\n", name, prefix, bound, cumulative)
			}
			cumulative += h.counts[l][len(h.buckets)]
			ew.printf("%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, cumulative)
			if l == "" {
				ew.printf("%s_sum %g\n", name, h.sums[l])
				ew.printf("%s_count %d\n", name, h.totals[l])
			} else {
				ew.printf("%s_sum{%s} %g\n", name, l, h.sums[l])
				ew.printf("%s_count{%s} %d\n", name, l, h.totals[l])
			}
		}
		h.mu.RUnlock()
	}

	return ew.err
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

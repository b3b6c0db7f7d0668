// Copyright 2025 Kyungsuk Kim
//
// Package diag collects per-operation diagnostics: a bounded ring of
// operation records plus aggregate timing and error statistics, served
// through the debug tool.
package diag

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// OperationRecord is one completed tool invocation.
type OperationRecord struct {
	ID        string        `json:"id"`
	Tool      string        `json:"tool"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	ErrorKind string        `json:"error_kind,omitempty"`
}

// ToolStats aggregates timings for a single tool.
type ToolStats struct {
	Count       int           `json:"count"`
	Errors      int           `json:"errors"`
	AvgDuration time.Duration `json:"avg_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Stats is the point-in-time snapshot returned to debug callers.
type Stats struct {
	Uptime          time.Duration        `json:"uptime"`
	TotalOperations int                  `json:"total_operations"`
	TotalErrors     int                  `json:"total_errors"`
	SuccessRate     float64              `json:"success_rate"`
	PerTool         map[string]ToolStats `json:"per_tool"`
	RecentErrors    []OperationRecord    `json:"recent_errors"`
}

type toolAgg struct {
	count    int
	errors   int
	totalDur time.Duration
	minDur   time.Duration
	maxDur   time.Duration
}

// Collector records completed operations in a fixed-capacity ring.
// Aggregates are maintained incrementally so a snapshot never walks
// more than the recent-error list.
type Collector struct {
	mu sync.Mutex

	capacity int
	records  []OperationRecord // ring buffer
	next     int

	errCapacity  int
	recentErrors []OperationRecord

	totalOps    int
	totalErrors int
	perTool     map[string]*toolAgg
	startedAt   time.Time
}

// NewCollector builds a Collector keeping up to capacity operation
// records and errCapacity recent errors.
func NewCollector(capacity, errCapacity int) *Collector {
	if capacity < 1 {
		capacity = 1
	}
	if errCapacity < 1 {
		errCapacity = 1
	}
	return &Collector{
		capacity:    capacity,
		records:     make([]OperationRecord, 0, capacity),
		errCapacity: errCapacity,
		perTool:     make(map[string]*toolAgg),
		startedAt:   time.Now(),
	}
}

// Record stores a completed operation and returns its assigned ID.
// errKind is empty for successful operations.
func (c *Collector) Record(tool string, startedAt time.Time, d time.Duration, errKind string) string {
	rec := OperationRecord{
		ID:        uuid.NewString(),
		Tool:      tool,
		StartedAt: startedAt,
		Duration:  d,
		Success:   errKind == "",
		ErrorKind: errKind,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) < c.capacity {
		c.records = append(c.records, rec)
	} else {
		c.records[c.next] = rec
	}
	c.next = (c.next + 1) % c.capacity

	c.totalOps++
	agg := c.perTool[tool]
	if agg == nil {
		agg = &toolAgg{minDur: d, maxDur: d}
		c.perTool[tool] = agg
	}
	agg.count++
	agg.totalDur += d
	if d < agg.minDur {
		agg.minDur = d
	}
	if d > agg.maxDur {
		agg.maxDur = d
	}

	if errKind != "" {
		c.totalErrors++
		agg.errors++
		c.recentErrors = append(c.recentErrors, rec)
		if len(c.recentErrors) > c.errCapacity {
			c.recentErrors = c.recentErrors[1:]
		}
	}

	return rec.ID
}

// Snapshot returns current statistics. The snapshot is independent of
// the collector; recording more operations does not mutate it.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Uptime:          time.Since(c.startedAt),
		TotalOperations: c.totalOps,
		TotalErrors:     c.totalErrors,
		SuccessRate:     1,
		PerTool:         make(map[string]ToolStats, len(c.perTool)),
		RecentErrors:    append([]OperationRecord(nil), c.recentErrors...),
	}
	if c.totalOps > 0 {
		st.SuccessRate = float64(c.totalOps-c.totalErrors) / float64(c.totalOps)
	}
	for tool, agg := range c.perTool {
		ts := ToolStats{
			Count:       agg.count,
			Errors:      agg.errors,
			MinDuration: agg.minDur,
			MaxDuration: agg.maxDur,
		}
		if agg.count > 0 {
			ts.AvgDuration = agg.totalDur / time.Duration(agg.count)
		}
		st.PerTool[tool] = ts
	}
	return st
}

// Recent returns up to n most recent operation records, newest first.
func (c *Collector) Recent(n int) []OperationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := len(c.records)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]OperationRecord, 0, n)
	idx := c.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx += c.capacity
		}
		out = append(out, c.records[idx])
		idx--
	}
	return out
}

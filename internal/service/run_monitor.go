package service

import (
	"sort"
	"sync"
	"time"
)

// RunMonitor tracks analysis run timings and outcomes
type RunMonitor struct {
	mu            sync.RWMutex
	durations     []time.Duration
	nodes         []int
	totalRuns     int64
	failedRuns    int64
	truncatedRuns int64 // runs that hit the node limit
	slowRuns      int64
	slowThreshold time.Duration
	maxSamples    int
}

// NewRunMonitor creates a monitor; runs longer than slowThreshold are counted as slow
func NewRunMonitor(slowThreshold time.Duration) *RunMonitor {
	if slowThreshold <= 0 {
		slowThreshold = 5 * time.Minute
	}
	return &RunMonitor{
		durations:     make([]time.Duration, 0, 256),
		nodes:         make([]int, 0, 256),
		slowThreshold: slowThreshold,
		maxSamples:    256, // Keep last 256 samples
	}
}

// RecordRun records a completed run
func (m *RunMonitor) RecordRun(duration time.Duration, nodes int, nodeLimitHit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRuns++
	if nodeLimitHit {
		m.truncatedRuns++
	}
	if duration > m.slowThreshold {
		m.slowRuns++
	}

	m.durations = append(m.durations, duration)
	m.nodes = append(m.nodes, nodes)
	if len(m.durations) > m.maxSamples {
		m.durations = m.durations[len(m.durations)-m.maxSamples:]
		m.nodes = m.nodes[len(m.nodes)-m.maxSamples:]
	}
}

// RecordFailure records a run that returned an error
func (m *RunMonitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRuns++
	m.failedRuns++
}

// RunStats contains run statistics
type RunStats struct {
	TotalRuns     int64   `json:"totalRuns"`
	FailedRuns    int64   `json:"failedRuns"`
	TruncatedRuns int64   `json:"truncatedRuns"`
	SlowRuns      int64   `json:"slowRuns"`
	AvgRunMs      float64 `json:"avgRunMs"`
	P95RunMs      float64 `json:"p95RunMs"`
	AvgNodes      float64 `json:"avgNodes"`
}

// GetStats returns current run statistics
func (m *RunMonitor) GetStats() *RunStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &RunStats{
		TotalRuns:     m.totalRuns,
		FailedRuns:    m.failedRuns,
		TruncatedRuns: m.truncatedRuns,
		SlowRuns:      m.slowRuns,
	}

	if len(m.durations) > 0 {
		var total time.Duration
		for _, d := range m.durations {
			total += d
		}
		stats.AvgRunMs = float64(total.Milliseconds()) / float64(len(m.durations))

		sorted := make([]time.Duration, len(m.durations))
		copy(sorted, m.durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p95Index := int(float64(len(sorted)) * 0.95)
		if p95Index >= len(sorted) {
			p95Index = len(sorted) - 1
		}
		stats.P95RunMs = float64(sorted[p95Index].Milliseconds())

		nodes := 0
		for _, n := range m.nodes {
			nodes += n
		}
		stats.AvgNodes = float64(nodes) / float64(len(m.nodes))
	}

	return stats
}

// Reset resets all run metrics
func (m *RunMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.durations = make([]time.Duration, 0, 256)
	m.nodes = make([]int, 0, 256)
	m.totalRuns = 0
	m.failedRuns = 0
	m.truncatedRuns = 0
	m.slowRuns = 0
}

package ratelimit

import (
	"sync/atomic"
	"time"
)

// throttleThreshold is the wait above which a request counts as throttled.
const throttleThreshold = time.Millisecond

// SourceMetrics is a snapshot of one source's pacing statistics.
type SourceMetrics struct {
	Source        string        `json:"source"`
	Requests      int64         `json:"requests"`
	ThrottleCount int64         `json:"throttle_count"`
	WaitTimeTotal time.Duration `json:"wait_time_total"`
	RatePerSecond float64       `json:"rate_per_second"`
	Burst         int           `json:"burst"`
}

type sourceMetrics struct {
	requests  int64
	throttled int64
	waitNs    int64
}

func (m *sourceMetrics) recordRequest(waited time.Duration) {
	atomic.AddInt64(&m.requests, 1)
	if waited >= throttleThreshold {
		atomic.AddInt64(&m.throttled, 1)
		atomic.AddInt64(&m.waitNs, int64(waited))
	}
}

// Metrics returns a snapshot of the source's counters.
func (r *Registry) Metrics(source string) (SourceMetrics, error) {
	e, err := r.entry(source)
	if err != nil {
		return SourceMetrics{}, err
	}
	return SourceMetrics{
		Source:        source,
		Requests:      atomic.LoadInt64(&e.metrics.requests),
		ThrottleCount: atomic.LoadInt64(&e.metrics.throttled),
		WaitTimeTotal: time.Duration(atomic.LoadInt64(&e.metrics.waitNs)),
		RatePerSecond: e.limit.RequestsPerSecond,
		Burst:         e.limit.Burst,
	}, nil
}

// AllMetrics returns snapshots for every registered source.
func (r *Registry) AllMetrics() []SourceMetrics {
	names := r.Sources()
	out := make([]SourceMetrics, 0, len(names))
	for _, name := range names {
		if m, err := r.Metrics(name); err == nil {
			out = append(out, m)
		}
	}
	return out
}

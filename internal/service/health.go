package service

import (
	"context"
	"time"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/circuitbreaker"
	"github.com/dustline/internal/ratelimit"
	"github.com/dustline/internal/storage"
)

// Health statuses
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// EndpointReporter reports per-endpoint health of the transaction source
type EndpointReporter interface {
	Health() []*adapter.ProviderHealth
}

// CacheReporter reports transaction cache counters
type CacheReporter interface {
	Stats() storage.CacheStats
}

// HealthReport is the body of the health endpoint
type HealthReport struct {
	Status     string                           `json:"status"`
	Service    string                           `json:"service"`
	CheckedAt  time.Time                        `json:"checkedAt"`
	Runs       *RunStats                        `json:"runs"`
	Endpoints  []*adapter.ProviderHealth        `json:"endpoints,omitempty"`
	Breakers   map[string]*circuitbreaker.Stats `json:"breakers,omitempty"`
	RateLimits []ratelimit.SourceMetrics        `json:"rateLimits,omitempty"`
	Cache      *storage.CacheStats              `json:"cache,omitempty"`
	Labels     *int                             `json:"labels,omitempty"`
	Problems   []string                         `json:"problems,omitempty"`
}

// HealthChecker assembles a HealthReport. Every field is optional.
type HealthChecker struct {
	Monitor   *RunMonitor
	Endpoints EndpointReporter
	Breakers  *circuitbreaker.Manager
	Limits    *ratelimit.Registry
	Cache     CacheReporter
	Labels    storage.LabelStore
}

// Check builds the report. The status is degraded when every transaction
// endpoint has an open breaker or the label store cannot be read.
func (h *HealthChecker) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:    StatusHealthy,
		Service:   "dustline",
		CheckedAt: time.Now().UTC(),
	}

	if h.Monitor != nil {
		report.Runs = h.Monitor.GetStats()
	}
	if h.Endpoints != nil {
		report.Endpoints = h.Endpoints.Health()
		if len(report.Endpoints) > 0 && allOpen(report.Endpoints) {
			report.Status = StatusDegraded
			report.Problems = append(report.Problems, "all transaction endpoints have open circuit breakers")
		}
	}
	if h.Breakers != nil {
		report.Breakers = h.Breakers.GetAllStats()
	}
	if h.Limits != nil {
		report.RateLimits = h.Limits.AllMetrics()
	}
	if h.Cache != nil {
		stats := h.Cache.Stats()
		report.Cache = &stats
	}
	if h.Labels != nil {
		n, err := h.Labels.Count(ctx)
		if err != nil {
			report.Status = StatusDegraded
			report.Problems = append(report.Problems, "label store unavailable: "+err.Error())
		} else {
			report.Labels = &n
		}
	}
	return report
}

func allOpen(endpoints []*adapter.ProviderHealth) bool {
	for _, e := range endpoints {
		if e.BreakerState != circuitbreaker.StateOpen {
			return false
		}
	}
	return true
}

package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustline/internal/circuitbreaker"
	"github.com/dustline/internal/logging"
)

// ProviderHealth represents the health status of one endpoint
type ProviderHealth struct {
	Name             string               `json:"name"`
	BaseURL          string               `json:"baseUrl"`
	TotalRequests    int64                `json:"totalRequests"`
	SuccessfulReqs   int64                `json:"successfulRequests"`
	FailedReqs       int64                `json:"failedRequests"`
	SuccessRate      float64              `json:"successRate"`
	AverageLatency   time.Duration        `json:"averageLatency"`
	LastSuccess      time.Time            `json:"lastSuccess"`
	LastFailure      time.Time            `json:"lastFailure"`
	ConsecutiveFails int                  `json:"consecutiveFails"`
	BreakerState     circuitbreaker.State `json:"breakerState"`
}

// Endpoint is one base URL of an Esplora-compatible API
type Endpoint struct {
	Name    string
	BaseURL string

	breaker *circuitbreaker.CircuitBreaker

	mu               sync.Mutex
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int
}

func (e *Endpoint) recordSuccess(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRequests++
	e.successfulReqs++
	e.totalLatency += d
	e.lastSuccess = time.Now()
	e.consecutiveFails = 0
}

func (e *Endpoint) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRequests++
	e.failedReqs++
	e.lastFailure = time.Now()
	e.consecutiveFails++
}

// Health returns the current health snapshot of the endpoint
func (e *Endpoint) Health() *ProviderHealth {
	e.mu.Lock()
	defer e.mu.Unlock()

	var successRate float64
	if e.totalRequests > 0 {
		successRate = float64(e.successfulReqs) / float64(e.totalRequests)
	}
	var avgLatency time.Duration
	if e.successfulReqs > 0 {
		avgLatency = e.totalLatency / time.Duration(e.successfulReqs)
	}

	return &ProviderHealth{
		Name:             e.Name,
		BaseURL:          e.BaseURL,
		TotalRequests:    e.totalRequests,
		SuccessfulReqs:   e.successfulReqs,
		FailedReqs:       e.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      e.lastSuccess,
		LastFailure:      e.lastFailure,
		ConsecutiveFails: e.consecutiveFails,
		BreakerState:     e.breaker.GetState(),
	}
}

// EndpointPool tries endpoints in priority order. An endpoint whose breaker
// is open is skipped until its cool-down elapses.
type EndpointPool struct {
	source    string
	endpoints []*Endpoint
}

// NewEndpointPool creates a pool from base URLs in priority order.
// Empty URLs are ignored.
func NewEndpointPool(source string, breakers *circuitbreaker.Manager, baseURLs ...string) (*EndpointPool, error) {
	if breakers == nil {
		breakers = circuitbreaker.NewManager()
	}

	pool := &EndpointPool{source: source}
	for i, u := range baseURLs {
		if u == "" {
			continue
		}
		name := fmt.Sprintf("%s-%d", source, i)
		cfg := circuitbreaker.DefaultConfig(name)
		cfg.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, ErrNotFound)
		}
		pool.endpoints = append(pool.endpoints, &Endpoint{
			Name:    name,
			BaseURL: u,
			breaker: breakers.GetOrCreate(name, cfg),
		})
	}

	if len(pool.endpoints) == 0 {
		return nil, fmt.Errorf("at least one %s endpoint is required", source)
	}
	return pool, nil
}

// Do runs fn against each endpoint until one succeeds.
// ErrNotFound is definitive and is returned without failing over.
func (p *EndpointPool) Do(ctx context.Context, fn func(ctx context.Context, baseURL string) error) error {
	logger := logging.FromContext(ctx)
	var lastErr error

	for _, ep := range p.endpoints {
		ep := ep
		start := time.Now()
		err := ep.breaker.Execute(ctx, func(ctx context.Context) error {
			return fn(ctx, ep.BaseURL)
		})

		switch {
		case err == nil:
			ep.recordSuccess(time.Since(start))
			return nil
		case errors.Is(err, ErrNotFound):
			ep.recordSuccess(time.Since(start))
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		if !errors.Is(err, circuitbreaker.ErrCircuitOpen) && !errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			ep.recordFailure()
		}
		lastErr = err

		logger.WithFields(map[string]interface{}{
			"endpoint": ep.Name,
			"baseUrl":  ep.BaseURL,
		}).WithError(err).Debug("Endpoint failed, failing over")
	}

	return NewSourceError(p.source, "request", fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr), nil)
}

// Health returns the health of every endpoint in priority order
func (p *EndpointPool) Health() []*ProviderHealth {
	out := make([]*ProviderHealth, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = ep.Health()
	}
	return out
}

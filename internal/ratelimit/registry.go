// Package ratelimit provides per-source request pacing for external APIs.
//
// Each source gets one token bucket (throughput) and one weighted semaphore
// (in-flight requests). A Registry is created once per process and shared by
// reference with every client that talks to that source.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Known source names
const (
	SourceEsplora        = "esplora"
	SourceWalletExplorer = "walletexplorer"
	SourceArkham         = "arkham"
)

// ErrUnknownSource is returned when a source has no registered limiter.
var ErrUnknownSource = errors.New("unknown rate limit source")

// SourceLimit describes the pacing of one external source.
type SourceLimit struct {
	// Name identifies the source, e.g. "walletexplorer".
	Name string

	// RequestsPerSecond is the sustained request rate ceiling.
	RequestsPerSecond float64

	// Burst is the number of tokens that may accumulate.
	Burst int

	// MaxConcurrent caps in-flight requests. Zero means unlimited.
	MaxConcurrent int
}

// Validate checks if the limit is usable.
func (l SourceLimit) Validate() error {
	if l.Name == "" {
		return errors.New("source name is required")
	}
	if l.RequestsPerSecond <= 0 {
		return fmt.Errorf("source %s: requests per second must be positive", l.Name)
	}
	if l.Burst < 1 {
		return fmt.Errorf("source %s: burst must be at least 1", l.Name)
	}
	if l.MaxConcurrent < 0 {
		return fmt.Errorf("source %s: max concurrent cannot be negative", l.Name)
	}
	return nil
}

// DefaultLimits returns the standard table for the three external sources.
func DefaultLimits(esploraRPS, walletExplorerRPS, arkhamRPS float64) []SourceLimit {
	return []SourceLimit{
		{Name: SourceEsplora, RequestsPerSecond: esploraRPS, Burst: 10, MaxConcurrent: 5},
		{Name: SourceWalletExplorer, RequestsPerSecond: walletExplorerRPS, Burst: 2, MaxConcurrent: 1},
		{Name: SourceArkham, RequestsPerSecond: arkhamRPS, Burst: 5, MaxConcurrent: 3},
	}
}

type sourceEntry struct {
	limit   SourceLimit
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	metrics *sourceMetrics
}

// Registry holds one limiter per source for the process lifetime.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*sourceEntry
}

// NewRegistry creates a registry with the given source limits.
func NewRegistry(limits ...SourceLimit) (*Registry, error) {
	r := &Registry{sources: make(map[string]*sourceEntry, len(limits))}
	for _, l := range limits {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces the limiter for a source.
func (r *Registry) Register(l SourceLimit) error {
	if err := l.Validate(); err != nil {
		return err
	}

	entry := &sourceEntry{
		limit:   l,
		limiter: rate.NewLimiter(rate.Limit(l.RequestsPerSecond), l.Burst),
		metrics: &sourceMetrics{},
	}
	if l.MaxConcurrent > 0 {
		entry.sem = semaphore.NewWeighted(int64(l.MaxConcurrent))
	}

	r.mu.Lock()
	r.sources[l.Name] = entry
	r.mu.Unlock()
	return nil
}

func (r *Registry) entry(source string) (*sourceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return e, nil
}

// Limiter returns the token bucket of a source, or nil if unregistered.
func (r *Registry) Limiter(source string) *rate.Limiter {
	e, err := r.entry(source)
	if err != nil {
		return nil
	}
	return e.limiter
}

// Acquire blocks until the source has both a concurrency slot and a rate
// token. The returned release func must be called when the request is done.
func (r *Registry) Acquire(ctx context.Context, source string) (func(), error) {
	e, err := r.entry(source)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		if e.sem != nil {
			e.sem.Release(1)
		}
		return nil, err
	}

	e.metrics.recordRequest(time.Since(start))

	var once sync.Once
	release := func() {
		once.Do(func() {
			if e.sem != nil {
				e.sem.Release(1)
			}
		})
	}
	return release, nil
}

// Wait blocks until a rate token is available without holding a concurrency slot.
func (r *Registry) Wait(ctx context.Context, source string) error {
	release, err := r.Acquire(ctx, source)
	if err != nil {
		return err
	}
	release()
	return nil
}

// Sources returns the registered source names.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}

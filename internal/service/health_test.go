package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/circuitbreaker"
	"github.com/dustline/internal/ratelimit"
	"github.com/dustline/internal/storage"
)

type staticEndpoints []*adapter.ProviderHealth

func (s staticEndpoints) Health() []*adapter.ProviderHealth { return s }

type staticCache storage.CacheStats

func (s staticCache) Stats() storage.CacheStats { return storage.CacheStats(s) }

type brokenStore struct{}

func (brokenStore) Lookup(context.Context, string) (*storage.EntityRecord, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Count(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func TestHealthChecker_Healthy(t *testing.T) {
	monitor := NewRunMonitor(time.Minute)
	monitor.RecordRun(time.Second, 12, false)

	limits, err := ratelimit.NewRegistry(ratelimit.DefaultLimits(8, 0.8, 5)...)
	require.NoError(t, err)
	breakers := circuitbreaker.NewManager()
	breakers.GetOrCreate("esplora-primary", nil)

	h := &HealthChecker{
		Monitor: monitor,
		Endpoints: staticEndpoints{
			{Name: "primary", BreakerState: circuitbreaker.StateOpen},
			{Name: "secondary", BreakerState: circuitbreaker.StateClosed},
		},
		Breakers: breakers,
		Limits:   limits,
		Cache:    staticCache{Hits: 3, Misses: 1},
		Labels: storage.NewMemoryLabelStore(storage.EntityRecord{
			Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", Entity: "Genesis", Category: "notable",
		}),
	}

	report := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "dustline", report.Service)
	assert.Empty(t, report.Problems)
	assert.Equal(t, int64(1), report.Runs.TotalRuns)
	assert.Len(t, report.Endpoints, 2)
	assert.Contains(t, report.Breakers, "esplora-primary")
	assert.Len(t, report.RateLimits, 3)
	require.NotNil(t, report.Cache)
	assert.Equal(t, int64(3), report.Cache.Hits)
	require.NotNil(t, report.Labels)
	assert.Equal(t, 1, *report.Labels)
}

func TestHealthChecker_AllEndpointsOpen(t *testing.T) {
	h := &HealthChecker{
		Endpoints: staticEndpoints{
			{Name: "primary", BreakerState: circuitbreaker.StateOpen},
			{Name: "secondary", BreakerState: circuitbreaker.StateOpen},
		},
	}

	report := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Problems, 1)
}

func TestHealthChecker_LabelStoreDown(t *testing.T) {
	h := &HealthChecker{Labels: brokenStore{}}

	report := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Nil(t, report.Labels)
	require.Len(t, report.Problems, 1)
	assert.Contains(t, report.Problems[0], "connection refused")
}

func TestHealthChecker_Empty(t *testing.T) {
	report := (&HealthChecker{}).Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Nil(t, report.Runs)
	assert.Nil(t, report.Cache)
}

package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dustline/internal/config"
	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/service"
	"github.com/dustline/internal/types"
)

const testAddress = "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"

// Mock services for testing
type mockEstimator struct {
	analyzeFunc func(ctx context.Context, address string, cfg config.AnalysisConfig) (*service.AnalysisResult, error)
	lastConfig  config.AnalysisConfig
	calls       int
}

func (m *mockEstimator) Analyze(ctx context.Context, address string, cfg config.AnalysisConfig) (*service.AnalysisResult, error) {
	m.calls++
	m.lastConfig = cfg
	if m.analyzeFunc != nil {
		return m.analyzeFunc(ctx, address, cfg)
	}
	return &service.AnalysisResult{
		RunID:   "run-123",
		Address: address,
		Estimate: &types.CostEstimate{
			Hops:         3,
			Confidence:   types.ConfidenceModerate,
			PrivacyFloor: types.FloorCostly,
		},
	}, nil
}

type mockHealth struct {
	report *service.HealthReport
}

func (m *mockHealth) Check(context.Context) *service.HealthReport {
	return m.report
}

func defaults() config.AnalysisConfig {
	return config.AnalysisConfig{
		Depth:                 5,
		NodeLimit:             500,
		Direction:             types.DirectionForward,
		WalletExplorerEnabled: true,
		WalletExplorerSample:  200,
	}
}

func setupTestServer(estimator EstimatorService, health HealthService) *Server {
	cfg := DefaultServerConfig("127.0.0.1", "0")
	cfg.ClientRPS = 100
	cfg.ClientBurst = 100
	return NewServer(cfg, estimator, health, defaults(), logging.NewNopLogger())
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleEstimate_Success(t *testing.T) {
	est := &mockEstimator{}
	s := setupTestServer(est, nil)

	rec := doGet(t, s, "/api/estimate/"+testAddress)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var result service.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "run-123", result.RunID)
	assert.Equal(t, testAddress, result.Address)
	assert.Equal(t, types.FloorCostly, result.Estimate.PrivacyFloor)
	assert.Equal(t, defaults(), est.lastConfig)
}

func TestHandleEstimate_QueryOverrides(t *testing.T) {
	est := &mockEstimator{}
	s := setupTestServer(est, nil)

	rec := doGet(t, s, "/api/estimate/"+testAddress+"?depth=8&nodeLimit=1200&direction=BOTH&thorough=true&walletexplorer=false")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8, est.lastConfig.Depth)
	assert.Equal(t, 1200, est.lastConfig.NodeLimit)
	assert.Equal(t, types.DirectionBoth, est.lastConfig.Direction)
	assert.True(t, est.lastConfig.Thorough)
	assert.False(t, est.lastConfig.WalletExplorerEnabled)
}

func TestHandleEstimate_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		param string
	}{
		{"depth not a number", "?depth=abc", "depth"},
		{"depth too large", "?depth=21", "depth"},
		{"depth zero", "?depth=0", "depth"},
		{"node limit too small", "?nodeLimit=5", "nodeLimit"},
		{"node limit too large", "?nodeLimit=5001", "nodeLimit"},
		{"unknown direction", "?direction=sideways", "direction"},
		{"thorough not a bool", "?thorough=maybe", "thorough"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			est := &mockEstimator{}
			s := setupTestServer(est, nil)

			rec := doGet(t, s, "/api/estimate/"+testAddress+tt.query)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
			assert.Equal(t, tt.param, resp.Error.Details["parameter"])
			assert.Zero(t, est.calls, "no analysis should start on bad parameters")
		})
	}
}

func TestHandleEstimate_InvalidAddress(t *testing.T) {
	est := &mockEstimator{
		analyzeFunc: func(_ context.Context, address string, _ config.AnalysisConfig) (*service.AnalysisResult, error) {
			return nil, apperrors.NewInvalidAddressError(address)
		},
	}
	s := setupTestServer(est, nil)

	rec := doGet(t, s, "/api/estimate/not-an-address")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ADDRESS", decodeError(t, rec).Error.Code)
}

func TestHandleEstimate_InternalErrorHidden(t *testing.T) {
	est := &mockEstimator{
		analyzeFunc: func(context.Context, string, config.AnalysisConfig) (*service.AnalysisResult, error) {
			return nil, apperrors.NewDatabaseError("lookup", assert.AnError)
		},
	}
	s := setupTestServer(est, nil)

	rec := doGet(t, s, "/api/estimate/"+testAddress)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestHandleEstimate_Cancelled(t *testing.T) {
	est := &mockEstimator{
		analyzeFunc: func(context.Context, string, config.AnalysisConfig) (*service.AnalysisResult, error) {
			return nil, context.Canceled
		},
	}
	s := setupTestServer(est, nil)

	rec := doGet(t, s, "/api/estimate/"+testAddress)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeCancelled, decodeError(t, rec).Error.Code)
}

func TestHandleEstimate_Gzip(t *testing.T) {
	s := setupTestServer(&mockEstimator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/estimate/"+testAddress, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	var result service.AnalysisResult
	require.NoError(t, json.NewDecoder(gz).Decode(&result))
	assert.Equal(t, "run-123", result.RunID)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultServerConfig("127.0.0.1", "0")
	cfg.ClientRPS = 0.001
	cfg.ClientBurst = 2
	s := NewServer(cfg, &mockEstimator{}, nil, defaults(), logging.NewNopLogger())

	for i := 0; i < 2; i++ {
		rec := doGet(t, s, "/api/estimate/"+testAddress)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doGet(t, s, "/api/estimate/"+testAddress)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, ErrCodeRateLimitExceeded, decodeError(t, rec).Error.Code)

	// a different client has its own budget
	req := httptest.NewRequest(http.MethodGet, "/api/estimate/"+testAddress, nil)
	req.Header.Set("X-Client-ID", "other")
	other := httptest.NewRecorder()
	s.Handler().ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)

	// health is never throttled
	assert.Equal(t, http.StatusOK, doGet(t, s, "/health").Code)
}

func TestHandleHealth(t *testing.T) {
	t.Run("no checker", func(t *testing.T) {
		s := setupTestServer(&mockEstimator{}, nil)
		rec := doGet(t, s, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"healthy"`)
	})

	t.Run("healthy", func(t *testing.T) {
		s := setupTestServer(&mockEstimator{}, &mockHealth{report: &service.HealthReport{
			Status:  service.StatusHealthy,
			Service: "dustline",
			Runs:    &service.RunStats{TotalRuns: 4},
		}})
		rec := doGet(t, s, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var report service.HealthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, int64(4), report.Runs.TotalRuns)
	})

	t.Run("degraded", func(t *testing.T) {
		s := setupTestServer(&mockEstimator{}, &mockHealth{report: &service.HealthReport{
			Status:   service.StatusDegraded,
			Problems: []string{"all transaction endpoints have open circuit breakers"},
		}})
		rec := doGet(t, s, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleConfig(t *testing.T) {
	s := setupTestServer(&mockEstimator{}, nil)

	rec := doGet(t, s, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Defaults.Depth)
	assert.Equal(t, config.MaxDepth, resp.Bounds.MaxDepth)
	assert.Equal(t, config.MaxNodeLimit, resp.Bounds.MaxNodeLimit)
	assert.Len(t, resp.Directions, 3)
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(&mockEstimator{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	est := &mockEstimator{
		analyzeFunc: func(context.Context, string, config.AnalysisConfig) (*service.AnalysisResult, error) {
			panic("boom")
		},
	}
	s := setupTestServer(est, nil)

	rec := doGet(t, s, "/api/estimate/"+testAddress)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Error.Code)
}

package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/config"
	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/storage"
	"github.com/dustline/internal/types"
)

const origin = "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"

type stubSource struct {
	txs     map[string]*types.TransactionRecord
	history map[string][]string
}

func (s *stubSource) GetTransaction(_ context.Context, txid string) (*types.TransactionRecord, error) {
	if rec, ok := s.txs[txid]; ok {
		return rec, nil
	}
	return nil, adapter.ErrNotFound
}

func (s *stubSource) GetHistory(_ context.Context, address string) ([]string, error) {
	return s.history[address], nil
}

type stubLabels map[string]*adapter.LabelMatch

func (l stubLabels) Name() string { return "stub" }

func (l stubLabels) Lookup(_ context.Context, address string) (*adapter.LabelMatch, error) {
	return l[address], nil
}

// consolidation: eight inputs from the origin's cluster into two outputs
func consolidationSource() *stubSource {
	var ins []types.TxInput
	for i := 0; i < 8; i++ {
		ins = append(ins, types.TxInput{Address: fmt.Sprintf("bc1qin%d", i), Amount: 10_000, PrevTxID: fmt.Sprintf("p%d", i), Sequence: 0xFFFFFFFF})
	}
	ins[0].Address = origin
	return &stubSource{
		txs: map[string]*types.TransactionRecord{
			"c1": {
				TxID:   "c1",
				Inputs: ins,
				Outputs: []types.TxOutput{
					{Address: "bc1qexchange", Amount: 70_000},
					{Address: "bc1pchange", Amount: 9_000},
				},
			},
		},
		history: map[string][]string{origin: {"c1"}},
	}
}

func defaultAnalysis() config.AnalysisConfig {
	return config.AnalysisConfig{
		Depth:                 5,
		NodeLimit:             100,
		Direction:             types.DirectionForward,
		WalletExplorerEnabled: true,
		WalletExplorerSample:  200,
		Workers:               2,
	}
}

var tiers = []types.RateTier{
	{Name: "mid-level", HourlyRate: 200},
	{Name: "senior", HourlyRate: 450, ToolingOverhead: 150, Reference: true},
	{Name: "expert", HourlyRate: 1000, ToolingOverhead: 150},
}

func TestAnalyze_EndToEnd(t *testing.T) {
	svc := NewAnalysisService(AnalysisDeps{
		Source: consolidationSource(),
		Local: storage.NewMemoryLabelStore(storage.EntityRecord{
			Address: "bc1qexchange", Entity: "Binance", Category: "exchange",
		}),
		WalletExplorer: stubLabels{"bc1pchange": {ClusterID: "00ff"}},
		RateTiers:      tiers,
	})

	res, err := svc.Analyze(context.Background(), origin, defaultAnalysis())
	require.NoError(t, err)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Equal(t, origin, res.Address)

	assert.Equal(t, 1, res.Traversal.NodeCount())
	assert.Equal(t, types.PatternConsolidation, res.Traversal.RootPattern)
	assert.Equal(t, "8-in → 2-out", res.Traversal.RootPatternDetail)

	// forward traversal records the two outputs
	assert.Equal(t, []string{"bc1qexchange", "bc1pchange"}, res.Traversal.AddressValues())
	assert.True(t, res.Attribution.Results["bc1qexchange"].Matched)
	assert.False(t, res.Attribution.Results["bc1pchange"].Matched)
	assert.True(t, res.Attribution.Results["bc1pchange"].Checked)
	assert.True(t, res.Attribution.SourcesExhausted)

	est := res.Estimate
	assert.Equal(t, 0.5, est.AttributionRate)
	assert.Equal(t, 1.0, est.Coverage)
	assert.InDelta(t, 1.6, est.Multipliers.FanIn, 1e-9)
	assert.Equal(t, 1, est.Hops)
	// 45 minutes per hop at 50% attribution
	assert.InDelta(t, 0.75*1.6, est.HoursLow, 1e-9)
	assert.Equal(t, types.ConfidenceHigh, est.Confidence)
	assert.Equal(t, types.FloorCostly, est.PrivacyFloor)

	stats := svc.Monitor().GetStats()
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Zero(t, stats.FailedRuns)
}

func TestAnalyze_EmptyHistory(t *testing.T) {
	svc := NewAnalysisService(AnalysisDeps{
		Source:    &stubSource{},
		Local:     storage.NewMemoryLabelStore(),
		RateTiers: tiers,
	})

	res, err := svc.Analyze(context.Background(), origin, defaultAnalysis())
	require.NoError(t, err)
	assert.Zero(t, res.Traversal.NodeCount())
	assert.Zero(t, res.Estimate.AttributionRate)
	assert.Equal(t, types.ConfidenceVeryLow, res.Estimate.Confidence)
	assert.False(t, res.Attribution.SourcesExhausted)
	assert.NotEmpty(t, res.Warnings)
}

func TestAnalyze_ConfigurationErrors(t *testing.T) {
	svc := NewAnalysisService(AnalysisDeps{Source: consolidationSource(), RateTiers: tiers})
	ctx := context.Background()

	tests := []struct {
		name    string
		address string
		mutate  func(*config.AnalysisConfig)
		code    string
	}{
		{"malformed address", "not-an-address", func(*config.AnalysisConfig) {}, "INVALID_ADDRESS"},
		{"depth", origin, func(c *config.AnalysisConfig) { c.Depth = 21 }, "INVALID_PARAMETER"},
		{"node limit", origin, func(c *config.AnalysisConfig) { c.NodeLimit = 5 }, "INVALID_PARAMETER"},
		{"direction", origin, func(c *config.AnalysisConfig) { c.Direction = "up" }, "INVALID_PARAMETER"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultAnalysis()
			tt.mutate(&cfg)
			_, err := svc.Analyze(ctx, tt.address, cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigurationError(err))
			assert.Equal(t, tt.code, apperrors.Categorize(err).Code)
		})
	}
	assert.Equal(t, int64(4), svc.Monitor().GetStats().FailedRuns)
}

func TestAnalyze_WalletExplorerDisabled(t *testing.T) {
	we := stubLabels{"bc1pchange": {Label: "Huobi.com"}}
	svc := NewAnalysisService(AnalysisDeps{
		Source:         consolidationSource(),
		Local:          storage.NewMemoryLabelStore(),
		WalletExplorer: we,
		RateTiers:      tiers,
	})

	cfg := defaultAnalysis()
	cfg.WalletExplorerEnabled = false
	res, err := svc.Analyze(context.Background(), origin, cfg)
	require.NoError(t, err)
	assert.Equal(t, []types.AttributionSource{types.SourceLocal}, res.Attribution.SourcesUsed)
	assert.False(t, res.Attribution.Results["bc1pchange"].Matched)

	cfg.WalletExplorerEnabled = true
	res, err = svc.Analyze(context.Background(), origin, cfg)
	require.NoError(t, err)
	assert.Equal(t, types.SourceWalletExplorer, res.Attribution.Results["bc1pchange"].Source)
}

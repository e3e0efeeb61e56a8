package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/attribution"
	"github.com/dustline/internal/config"
	"github.com/dustline/internal/cost"
	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/graph"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/storage"
	"github.com/dustline/internal/types"
)

// AnalysisService runs traversal, attribution and cost estimation for one address
type AnalysisService struct {
	engine         *graph.Engine
	local          storage.LabelStore
	walletExplorer adapter.LabelSource
	arkham         adapter.LabelSource
	rates          []types.RateTier
	monitor        *RunMonitor
}

// AnalysisDeps are the collaborators of an AnalysisService. Optional tiers may be nil.
type AnalysisDeps struct {
	Source         adapter.TransactionSource
	Local          storage.LabelStore
	WalletExplorer adapter.LabelSource
	Arkham         adapter.LabelSource
	RateTiers      []types.RateTier
	Workers        int
	Monitor        *RunMonitor
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(deps AnalysisDeps) *AnalysisService {
	monitor := deps.Monitor
	if monitor == nil {
		monitor = NewRunMonitor(0)
	}
	return &AnalysisService{
		engine:         graph.NewEngine(deps.Source, deps.Workers),
		local:          deps.Local,
		walletExplorer: deps.WalletExplorer,
		arkham:         deps.Arkham,
		rates:          deps.RateTiers,
		monitor:        monitor,
	}
}

// AnalysisResult is the output contract of one run
type AnalysisResult struct {
	RunID       string                   `json:"runId"`
	Address     string                   `json:"address"`
	Traversal   *types.TraversalResult   `json:"traversal"`
	Attribution *types.AttributionReport `json:"attribution"`
	Estimate    *types.CostEstimate      `json:"estimate"`
	Warnings    []string                 `json:"warnings,omitempty"`
	StartedAt   time.Time                `json:"startedAt"`
	DurationMs  int64                    `json:"durationMs"`
}

// Monitor returns the run monitor
func (s *AnalysisService) Monitor() *RunMonitor {
	return s.monitor
}

// Analyze validates the request, walks the graph with attribution wired in
// and prices the result. Only configuration errors and cancellation fail a run.
func (s *AnalysisService) Analyze(ctx context.Context, address string, cfg config.AnalysisConfig) (*AnalysisResult, error) {
	address = strings.TrimSpace(address)
	runID := uuid.New().String()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"run_id":  runID,
		"address": address,
	})
	ctx = logging.WithLogger(ctx, logger)

	if !types.ValidateAddress(address) {
		s.monitor.RecordFailure()
		return nil, apperrors.NewInvalidAddressError(address)
	}
	if err := cfg.Validate(); err != nil {
		s.monitor.RecordFailure()
		return nil, err
	}

	started := time.Now()
	resolver := s.newResolver(cfg)
	logger.WithFields(map[string]interface{}{
		"depth":     cfg.Depth,
		"nodeLimit": cfg.NodeLimit,
		"direction": cfg.Direction,
		"tiers":     resolver.Sources(),
	}).Info("analysis started")

	traversal, err := s.engine.Traverse(ctx, address, graph.Options{
		Direction:  cfg.Direction,
		MaxDepth:   cfg.Depth,
		MaxNodes:   cfg.NodeLimit,
		Attributor: resolver,
	})
	if err != nil {
		s.monitor.RecordFailure()
		logger.WithError(err).Warn("analysis aborted")
		return nil, err
	}

	report := resolver.Report(traversal.AddressValues())
	estimate := cost.Estimate(traversal, report, traversal.MaxDepthReached, s.rates)

	result := &AnalysisResult{
		RunID:       runID,
		Address:     address,
		Traversal:   traversal,
		Attribution: report,
		Estimate:    estimate,
		StartedAt:   started.UTC(),
		DurationMs:  time.Since(started).Milliseconds(),
	}
	result.Warnings = append(result.Warnings, traversal.Warnings...)
	result.Warnings = append(result.Warnings, report.Warnings...)

	s.monitor.RecordRun(time.Since(started), traversal.NodeCount(), traversal.NodeLimitHit)
	logger.WithFields(map[string]interface{}{
		"nodes":      traversal.NodeCount(),
		"addresses":  len(traversal.Addresses),
		"attributed": estimate.Attributed,
		"confidence": string(estimate.Confidence),
		"floor":      string(estimate.PrivacyFloor),
		"durationMs": result.DurationMs,
	}).Info("analysis complete")

	return result, nil
}

// newResolver builds the per-run resolver: LOCAL, then WalletExplorer when
// enabled, then Arkham when a key was configured
func (s *AnalysisService) newResolver(cfg config.AnalysisConfig) *attribution.Resolver {
	var providers []attribution.Provider
	if s.local != nil {
		providers = append(providers, attribution.NewLocalProvider(s.local))
	}
	if cfg.WalletExplorerEnabled && s.walletExplorer != nil {
		providers = append(providers, attribution.NewRemoteProvider(types.SourceWalletExplorer, s.walletExplorer))
	}
	if s.arkham != nil {
		providers = append(providers, attribution.NewRemoteProvider(types.SourceArkham, s.arkham))
	}
	return attribution.NewResolver(attribution.Options{
		Thorough:    cfg.Thorough,
		SampleSize:  cfg.WalletExplorerSample,
		Concurrency: cfg.Workers,
	}, providers...)
}

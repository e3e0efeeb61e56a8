// Package commands implements the dustline subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/circuitbreaker"
	"github.com/dustline/internal/config"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/ratelimit"
	"github.com/dustline/internal/retry"
	"github.com/dustline/internal/service"
	"github.com/dustline/internal/storage"
)

// LogLevelFlag overrides LOG_LEVEL when set
var LogLevelFlag string

// cfg is loaded once by Initialize before any command runs
var cfg *config.Config

// Initialize loads configuration and sets up the global logger
func Initialize() error {
	loaded, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	level := cfg.Logging.Level
	if LogLevelFlag != "" {
		level = LogLevelFlag
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(level), logging.ParseLogFormat(cfg.Logging.Format))
	return nil
}

// stack holds every long-lived collaborator of an analysis
type stack struct {
	limits   *ratelimit.Registry
	breakers *circuitbreaker.Manager
	esplora  *adapter.EsploraClient
	cache    *storage.CachedDataSource
	labels   storage.LabelStore
	monitor  *service.RunMonitor
	analysis *service.AnalysisService

	redis    *storage.RedisCache
	postgres *storage.PostgresDB
}

// newStack wires sources, caches and attribution tiers from configuration.
// Redis and Postgres are optional; when either is unreachable the run
// continues without it.
func newStack(ctx context.Context, arkhamKey string) (*stack, error) {
	logger := logging.GetGlobalLogger()

	limits, err := ratelimit.NewRegistry(ratelimit.DefaultLimits(
		cfg.Sources.EsploraRPS, cfg.Sources.WalletExplorerRPS, cfg.Sources.ArkhamRPS)...)
	if err != nil {
		return nil, fmt.Errorf("invalid source rate limits: %w", err)
	}
	breakers := circuitbreaker.NewManager()

	endpoints := []string{cfg.Sources.EsploraPrimary}
	if cfg.Sources.EsploraSecondary != "" {
		endpoints = append(endpoints, cfg.Sources.EsploraSecondary)
	}
	esplora, err := adapter.NewEsploraClient(adapter.EsploraConfig{
		Endpoints:    endpoints,
		Timeout:      cfg.Sources.RequestTimeout,
		HistoryLimit: cfg.Sources.HistoryLimit,
		Retry:        retry.DefaultRetryConfig(),
	}, limits, breakers)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction source: %w", err)
	}

	rt := &stack{
		limits:   limits,
		breakers: breakers,
		esplora:  esplora,
		monitor:  service.NewRunMonitor(0),
	}

	var source adapter.TransactionSource = esplora
	if cfg.Database.Redis.Host != "" {
		redisCache, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable; running without transaction cache")
		} else {
			rt.redis = redisCache
			rt.cache = storage.NewCachedDataSource(esplora, redisCache, cfg.Cache.TTL, cfg.Cache.HistoryTTL)
			source = rt.cache
		}
	}

	rt.labels, err = rt.openLabelStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	deps := service.AnalysisDeps{
		Source:    source,
		Local:     rt.labels,
		RateTiers: cfg.RateTiers,
		Workers:   cfg.Analysis.Workers,
		Monitor:   rt.monitor,
		WalletExplorer: adapter.NewWalletExplorerClient(adapter.WalletExplorerConfig{
			BaseURL: cfg.Sources.WalletExplorerURL,
			Timeout: cfg.Sources.RequestTimeout,
			Retry:   retry.DefaultRetryConfig(),
		}, limits),
	}

	if arkhamKey == "" {
		arkhamKey = cfg.Attribution.ArkhamAPIKey
	}
	if arkhamKey != "" {
		arkham, err := adapter.NewArkhamClient(adapter.ArkhamConfig{
			BaseURL: cfg.Sources.ArkhamURL,
			APIKey:  arkhamKey,
			Timeout: cfg.Sources.RequestTimeout,
			Retry:   retry.DefaultRetryConfig(),
		}, limits)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create Arkham client: %w", err)
		}
		deps.Arkham = arkham
	}

	rt.analysis = service.NewAnalysisService(deps)
	return rt, nil
}

// openLabelStore prefers the Postgres entity table and falls back to the entities file
func (rt *stack) openLabelStore(ctx context.Context) (storage.LabelStore, error) {
	logger := logging.GetGlobalLogger()

	if cfg.Database.Postgres.Enabled() {
		db, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		if err == nil {
			rt.postgres = db
			return storage.NewEntityRepository(db), nil
		}
		logger.WithError(err).Warn("Postgres unavailable; falling back to entities file")
	}

	store, err := storage.LoadEntitiesFile(cfg.Attribution.EntitiesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities file: %w", err)
	}
	n, _ := store.Count(ctx)
	logger.WithFields(map[string]interface{}{
		"path":      cfg.Attribution.EntitiesFile,
		"addresses": n,
	}).Debug("local attribution table loaded")
	return store, nil
}

// healthChecker reports on the stack's collaborators
func (rt *stack) healthChecker() *service.HealthChecker {
	h := &service.HealthChecker{
		Monitor:   rt.monitor,
		Endpoints: rt.esplora,
		Breakers:  rt.breakers,
		Limits:    rt.limits,
		Labels:    rt.labels,
	}
	if rt.cache != nil {
		h.Cache = rt.cache
	}
	return h
}

// Close releases database connections
func (rt *stack) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.postgres != nil {
		rt.postgres.Close()
	}
}

// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dustline/internal/config"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/service"
)

// Service interfaces for dependency injection and testing

// EstimatorService runs one analysis
type EstimatorService interface {
	Analyze(ctx context.Context, address string, cfg config.AnalysisConfig) (*service.AnalysisResult, error)
}

// HealthService reports component health
type HealthService interface {
	Check(ctx context.Context) *service.HealthReport
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	estimator  EstimatorService
	health     HealthService
	defaults   config.AnalysisConfig
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // must cover a full traversal
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ClientRPS       float64 // estimate requests per second per client
	ClientBurst     int
}

// DefaultServerConfig returns timeouts suited to long-running estimates
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:            host,
		Port:            port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		ClientRPS:       0.2,
		ClientBurst:     3,
	}
}

// NewServer creates a new API server instance. defaults supplies the
// analysis parameters a request does not override.
func NewServer(cfg *ServerConfig, estimator EstimatorService, health HealthService, defaults config.AnalysisConfig, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:    mux.NewRouter(),
		estimator: estimator,
		health:    health,
		defaults:  defaults,
		config:    cfg,
		logger:    logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.ClientRPS, s.config.ClientBurst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(rateLimiter))
	api.Use(CompressionMiddleware)
	api.HandleFunc("/estimate/{address}", s.handleEstimate).Methods("GET", "OPTIONS")
	api.HandleFunc("/config", s.handleConfig).Methods("GET", "OPTIONS")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  service.StatusHealthy,
			"service": "dustline",
		})
		return
	}
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != service.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

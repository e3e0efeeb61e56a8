package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dustline/internal/config"
	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/types"
)

// handleEstimate handles GET /api/estimate/{address}
//
// Query parameters override the server defaults: depth, nodeLimit,
// direction, thorough and walletexplorer.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(mux.Vars(r)["address"])

	cfg, err := s.analysisConfig(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.estimator.Analyze(r.Context(), address, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			respondError(w, http.StatusServiceUnavailable, ErrCodeCancelled, "The analysis was cancelled before it completed", nil)
			return
		}
		if !apperrors.IsUserError(err) {
			logging.FromContext(r.Context()).WithError(err).Error("estimate failed")
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// analysisConfig applies the request's query overrides to the defaults
func (s *Server) analysisConfig(r *http.Request) (config.AnalysisConfig, error) {
	cfg := s.defaults
	q := r.URL.Query()

	if v := q.Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, apperrors.NewInvalidParameterError("depth", "must be an integer")
		}
		cfg.Depth = n
	}
	if v := q.Get("nodeLimit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, apperrors.NewInvalidParameterError("nodeLimit", "must be an integer")
		}
		cfg.NodeLimit = n
	}
	if v := q.Get("direction"); v != "" {
		cfg.Direction = types.Direction(strings.ToLower(v))
	}
	if v := q.Get("thorough"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, apperrors.NewInvalidParameterError("thorough", "must be true or false")
		}
		cfg.Thorough = b
	}
	if v := q.Get("walletexplorer"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, apperrors.NewInvalidParameterError("walletexplorer", "must be true or false")
		}
		cfg.WalletExplorerEnabled = b
	}

	return cfg, cfg.Validate()
}

// configResponse describes the accepted request parameters
type configResponse struct {
	Defaults struct {
		Depth          int             `json:"depth"`
		NodeLimit      int             `json:"nodeLimit"`
		Direction      types.Direction `json:"direction"`
		Thorough       bool            `json:"thorough"`
		WalletExplorer bool            `json:"walletexplorer"`
	} `json:"defaults"`
	Bounds struct {
		MinDepth     int `json:"minDepth"`
		MaxDepth     int `json:"maxDepth"`
		MinNodeLimit int `json:"minNodeLimit"`
		MaxNodeLimit int `json:"maxNodeLimit"`
	} `json:"bounds"`
	Directions []types.Direction `json:"directions"`
}

// handleConfig handles GET /api/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var resp configResponse
	resp.Defaults.Depth = s.defaults.Depth
	resp.Defaults.NodeLimit = s.defaults.NodeLimit
	resp.Defaults.Direction = s.defaults.Direction
	resp.Defaults.Thorough = s.defaults.Thorough
	resp.Defaults.WalletExplorer = s.defaults.WalletExplorerEnabled
	resp.Bounds.MinDepth = config.MinDepth
	resp.Bounds.MaxDepth = config.MaxDepth
	resp.Bounds.MinNodeLimit = config.MinNodeLimit
	resp.Bounds.MaxNodeLimit = config.MaxNodeLimit
	resp.Directions = []types.Direction{types.DirectionForward, types.DirectionBackward, types.DirectionBoth}

	respondJSON(w, http.StatusOK, resp)
}

package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustline/internal/ratelimit"
	"github.com/dustline/internal/retry"
)

// ArkhamClient looks up entity labels on the Arkham Intelligence API
type ArkhamClient struct {
	baseURL string
	apiKey  string
	http    *httpGetter
}

// ArkhamConfig configures the Arkham client
type ArkhamConfig struct {
	BaseURL string // e.g. https://api.arkhamintelligence.com
	APIKey  string
	Timeout time.Duration
	Retry   *retry.RetryConfig
}

type arkhamResponse struct {
	ArkhamEntity *struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"arkhamEntity"`
	ArkhamLabel *struct {
		Name string `json:"name"`
	} `json:"arkhamLabel"`
}

// NewArkhamClient creates an Arkham client. It returns an error without an API key.
func NewArkhamClient(cfg ArkhamConfig, limits *ratelimit.Registry) (*ArkhamClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("arkham API key is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ArkhamClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    newHTTPGetter(ratelimit.SourceArkham, &http.Client{Timeout: timeout}, limits, cfg.Retry),
	}, nil
}

// Name implements LabelSource
func (c *ArkhamClient) Name() string {
	return ratelimit.SourceArkham
}

// Lookup returns the entity name and type Arkham holds for an address
func (c *ArkhamClient) Lookup(ctx context.Context, address string) (*LabelMatch, error) {
	var resp arkhamResponse
	endpoint := c.baseURL + "/intelligence/address/" + url.PathEscape(address)
	err := c.http.getJSON(ctx, endpoint, map[string]string{"API-Key": c.apiKey}, &resp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, NewSourceError(c.Name(), "Lookup", err, map[string]interface{}{"address": address})
	}

	match := &LabelMatch{}
	if resp.ArkhamEntity != nil {
		match.Label = resp.ArkhamEntity.Name
		match.Category = strings.ToLower(resp.ArkhamEntity.Type)
	}
	if match.Label == "" && resp.ArkhamLabel != nil {
		match.Label = resp.ArkhamLabel.Name
	}
	if match.Label == "" {
		return nil, nil
	}
	return match, nil
}

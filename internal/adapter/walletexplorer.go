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

// WalletExplorerClient looks up cluster labels on walletexplorer.com
type WalletExplorerClient struct {
	baseURL string
	caller  string
	http    *httpGetter
}

// WalletExplorerConfig configures the WalletExplorer client
type WalletExplorerConfig struct {
	BaseURL string // e.g. https://www.walletexplorer.com/api/1
	Caller  string
	Timeout time.Duration
	Retry   *retry.RetryConfig
}

type walletExplorerResponse struct {
	Found      bool   `json:"found"`
	FoundAlt   bool   `json:"_found"`
	Label      string `json:"label"`
	WalletName string `json:"wallet_name"`
	WalletID   string `json:"wallet_id"`
}

// NewWalletExplorerClient creates a WalletExplorer client paced by the shared registry
func NewWalletExplorerClient(cfg WalletExplorerConfig, limits *ratelimit.Registry) *WalletExplorerClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	caller := cfg.Caller
	if caller == "" {
		caller = "dustline"
	}
	return &WalletExplorerClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		caller:  caller,
		http:    newHTTPGetter(ratelimit.SourceWalletExplorer, &http.Client{Timeout: timeout}, limits, cfg.Retry),
	}
}

// Name implements LabelSource
func (c *WalletExplorerClient) Name() string {
	return ratelimit.SourceWalletExplorer
}

// Lookup returns the cluster label of an address. An address inside an
// unnamed cluster yields a match with ClusterID set and no Label.
func (c *WalletExplorerClient) Lookup(ctx context.Context, address string) (*LabelMatch, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("caller", c.caller)

	var resp walletExplorerResponse
	if err := c.http.getJSON(ctx, c.baseURL+"/address?"+q.Encode(), nil, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, NewSourceError(c.Name(), "Lookup", err, map[string]interface{}{"address": address})
	}

	if !resp.Found && !resp.FoundAlt {
		return nil, nil
	}

	label := resp.Label
	if label == "" {
		label = resp.WalletName
	}
	// WalletExplorer names anonymous clusters by their hex id
	if label == resp.WalletID {
		label = ""
	}

	return &LabelMatch{Label: label, ClusterID: resp.WalletID}, nil
}

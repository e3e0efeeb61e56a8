package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/ratelimit"
	"github.com/dustline/internal/retry"
)

// maxBodyBytes bounds a single API response
const maxBodyBytes = 8 << 20

// httpGetter performs paced, retried GET requests against one source
type httpGetter struct {
	source string
	client *http.Client
	limits *ratelimit.Registry
	retry  *retry.RetryConfig
}

func newHTTPGetter(source string, client *http.Client, limits *ratelimit.Registry, retryCfg *retry.RetryConfig) *httpGetter {
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	cfg := *retryCfg
	cfg.ShouldRetry = apperrors.IsRetryable
	return &httpGetter{source: source, client: client, limits: limits, retry: &cfg}
}

// getJSON fetches url and decodes the body into out
func (g *httpGetter) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	return retry.Do(ctx, g.retry, func(ctx context.Context, attempt int) error {
		body, err := g.get(ctx, url, headers)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return nil
	})
}

// get performs one request under the source's rate limit
func (g *httpGetter) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if g.limits != nil {
		release, err := g.limits.Acquire(ctx, g.source)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperrors.NewProviderTimeoutError(g.source)
		}
		return nil, apperrors.NewProviderError(g.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewProviderError(g.source, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewProviderRateLimitError(g.source)
	case resp.StatusCode >= 500:
		return nil, apperrors.NewProviderError(g.source, fmt.Errorf("HTTP %d", resp.StatusCode))
	default:
		perr := apperrors.NewProviderError(g.source, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
		perr.StatusCode = resp.StatusCode
		return nil, perr
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

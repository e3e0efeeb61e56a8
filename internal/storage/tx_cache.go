package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/dustline/internal/adapter"
	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/types"
)

// Default cache lifetimes
const (
	DefaultSettledTTL  = 24 * time.Hour
	DefaultVolatileTTL = 10 * time.Minute
)

// CachedDataSource is a read-through Redis cache in front of a TransactionSource.
// Cache failures never fail a lookup; the inner source is consulted instead.
// Concurrent misses for the same key share one upstream request.
type CachedDataSource struct {
	inner       adapter.TransactionSource
	client      *redis.Client
	settledTTL  time.Duration
	volatileTTL time.Duration
	flight      singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// CacheStats reports hit and miss counts
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"` // misses answered by another caller's in-flight request
}

// NewCachedDataSource wraps inner with a Redis cache.
// settledTTL applies to confirmed transactions whose outputs are all spent;
// everything else, histories included, uses volatileTTL.
func NewCachedDataSource(inner adapter.TransactionSource, cache *RedisCache, settledTTL, volatileTTL time.Duration) *CachedDataSource {
	if settledTTL <= 0 {
		settledTTL = DefaultSettledTTL
	}
	if volatileTTL <= 0 {
		volatileTTL = DefaultVolatileTTL
	}
	return &CachedDataSource{
		inner:       inner,
		client:      cache.Client(),
		settledTTL:  settledTTL,
		volatileTTL: volatileTTL,
	}
}

func txKey(txid string) string {
	return fmt.Sprintf("dustline:tx:%s", txid)
}

func historyKey(address string) string {
	return fmt.Sprintf("dustline:hist:%s", address)
}

// GetTransaction implements adapter.TransactionSource
func (c *CachedDataSource) GetTransaction(ctx context.Context, txid string) (*types.TransactionRecord, error) {
	var rec types.TransactionRecord
	if c.get(ctx, txKey(txid), &rec) {
		return &rec, nil
	}

	v, err, shared := c.flight.Do(txKey(txid), func() (interface{}, error) {
		fresh, err := c.inner.GetTransaction(ctx, txid)
		if err != nil {
			return nil, err
		}
		c.set(ctx, txKey(txid), fresh, c.transactionTTL(fresh))
		return fresh, nil
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.(*types.TransactionRecord), nil
}

// GetHistory implements adapter.TransactionSource
func (c *CachedDataSource) GetHistory(ctx context.Context, address string) ([]string, error) {
	var txids []string
	if c.get(ctx, historyKey(address), &txids) {
		return txids, nil
	}

	v, err, shared := c.flight.Do(historyKey(address), func() (interface{}, error) {
		fresh, err := c.inner.GetHistory(ctx, address)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			fresh = []string{}
		}
		c.set(ctx, historyKey(address), fresh, c.volatileTTL)
		return fresh, nil
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Stats returns the hit and miss counters
func (c *CachedDataSource) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Shared: c.shared.Load()}
}

// transactionTTL keeps a record for the long TTL only when nothing about it can change
func (c *CachedDataSource) transactionTTL(rec *types.TransactionRecord) time.Duration {
	if rec.BlockHeight == nil {
		return c.volatileTTL
	}
	for _, out := range rec.Outputs {
		if out.Address != "" && out.Amount > 0 && out.SpentByID == "" {
			return c.volatileTTL
		}
	}
	return c.settledTTL
}

func (c *CachedDataSource) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.FromContext(ctx).WithError(apperrors.NewCacheError("get", err)).
				WithField("key", key).Debug("cache read failed")
		}
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Debug("dropping undecodable cache entry")
		_ = c.client.Del(ctx, key).Err()
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *CachedDataSource) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logging.FromContext(ctx).WithError(apperrors.NewCacheError("set", err)).
			WithField("key", key).Debug("cache write failed")
	}
}

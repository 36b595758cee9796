package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "catalog:product:"

// Cached is a read-through Redis cache in front of another Catalog.
//
// Only hits are cached: a missing product is never stored, so a freshly
// published product becomes scannable (and auto-provisionable) immediately.
// Cache failures degrade to the inner catalog, never to an error.
type Cached struct {
	inner  Catalog
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps inner with a Redis product cache.
func NewCached(inner Catalog, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Cached) FindProductByReference(ctx context.Context, ref string) (*Product, error) {
	key := cacheKeyPrefix + ref

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var product Product
		if err := json.Unmarshal(raw, &product); err == nil {
			return &product, nil
		}
		c.logger.Warn("dropping corrupt catalog cache entry", zap.String("reference", ref))
		c.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache read failed", zap.String("reference", ref), zap.Error(err))
	}

	product, err := c.inner.FindProductByReference(ctx, ref)
	if err != nil || product == nil {
		return product, err
	}

	if raw, err := json.Marshal(product); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", zap.String("reference", ref), zap.Error(err))
		}
	}

	return product, nil
}

// Invalidate drops the cached entry for ref, if any.
func (c *Cached) Invalidate(ctx context.Context, ref string) error {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+ref).Err(); err != nil {
		return fmt.Errorf("catalog: invalidate %q: %w", ref, err)
	}
	return nil
}

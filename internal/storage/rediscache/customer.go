// Package rediscache provides a read-through cache for Breeze customer ids.
package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/breeze-gateway/internal/domain/customer"
)

const defaultTTL = 24 * time.Hour

var _ customer.Store = (*CustomerCache)(nil)

// CustomerCache wraps a customer.Store with a Redis read-through cache.
// Cache failures are logged and fall back to the underlying store.
type CustomerCache struct {
	client *redis.Client
	next   customer.Store
	ttl    time.Duration
	sfg    singleflight.Group
}

// NewCustomerCache wraps next. A non-positive ttl selects the default.
func NewCustomerCache(client *redis.Client, next customer.Store, ttl time.Duration) *CustomerCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CustomerCache{client: client, next: next, ttl: ttl}
}

func cacheKey(userID int64) string {
	return "breeze:customer:" + strconv.FormatInt(userID, 10)
}

// RemoteID returns the cached id or loads it from the underlying store.
// Concurrent misses for one user share a single load.
func (c *CustomerCache) RemoteID(ctx context.Context, userID int64) (string, error) {
	key := cacheKey(userID)
	v, err, _ := c.sfg.Do(key, func() (any, error) {
		id, err := c.client.Get(ctx, key).Result()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Customer cache get", zap.Error(err))
		}

		id, err = c.next.RemoteID(ctx, userID)
		if err != nil {
			return "", err
		}
		if err := c.client.Set(ctx, key, id, c.ttl).Err(); err != nil {
			zctx.From(ctx).Warn("Customer cache set", zap.Error(err))
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetRemoteID writes through to the underlying store and refreshes the cache.
func (c *CustomerCache) SetRemoteID(ctx context.Context, userID int64, remoteID string) error {
	if err := c.next.SetRemoteID(ctx, userID, remoteID); err != nil {
		return err
	}
	if err := c.client.Set(ctx, cacheKey(userID), remoteID, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Customer cache set", zap.Error(err))
	}
	return nil
}

// Package cache keeps short-lived product snapshots in Redis. It is a read
// accelerator only: stock checks always go to the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

const keyPrefix = "product:"

// ProductCache is safe to use as a nil pointer; every method is then a
// no-op miss.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewProductCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *ProductCache {
	return &ProductCache{client: client, ttl: ttl, log: log}
}

func key(id uuid.UUID) string { return keyPrefix + id.String() }

// Get returns the cached product, or nil on a miss or any cache error.
func (c *ProductCache) Get(ctx context.Context, id uuid.UUID) *model.Product {
	if c == nil {
		return nil
	}
	cached, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("product cache get", "product_id", id, "error", err)
		}
		return nil
	}
	var p model.Product
	if err := json.Unmarshal(cached, &p); err != nil {
		c.log.Warn("product cache decode", "product_id", id, "error", err)
		return nil
	}
	return &p
}

func (c *ProductCache) Set(ctx context.Context, p *model.Product) {
	if c == nil || p == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(p.ID), data, c.ttl).Err(); err != nil {
		c.log.Warn("product cache set", "product_id", p.ID, "error", err)
	}
}

func (c *ProductCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("product cache invalidate", "count", len(ids), "error", err)
	}
}

// Follow drops cached snapshots of every product named by a catalog change
// until ctx is done or the subscription is closed. It closes sub on return.
func (c *ProductCache) Follow(ctx context.Context, sub *notify.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C():
			if !ok {
				return
			}
			if sub.Lagged() && c != nil {
				c.log.Warn("product cache missed catalog changes, entries may be stale until ttl")
			}
			c.Invalidate(ctx, change.ProductIDs...)
		}
	}
}

func (c *ProductCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *ProductCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

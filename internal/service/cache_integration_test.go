//go:build integration

package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/go-ecommerce-core/internal/cache"
	"github.com/flicky/go-ecommerce-core/internal/logging"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository/memory"
	"github.com/flicky/go-ecommerce-core/internal/testenv"
)

// No Follow goroutine runs here, so only the synchronous invalidation after
// commit can refresh the cached product.
func TestOrderService_InvalidatesCachedStockOnCommit(t *testing.T) {
	ctx := context.Background()
	addr, stop, err := testenv.Redis(ctx)
	require.NoError(t, err)
	t.Cleanup(stop)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	log := logging.Discard()
	pc := cache.NewProductCache(client, time.Minute, log)
	hub := notify.NewHub()
	gw := memory.New(hub)
	f := newFixtureWith(t, hub, gw)
	f.catalog = NewCatalogService(gw, hub, pc, 2, log)
	f.orders = NewOrderService(gw, hub, pc, log, RetryPolicy{Attempts: 1})

	user := f.user(t, "alice")
	p := f.product(t, "P", "3", 5)
	warm, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 5, warm.Stock)
	require.NotNil(t, pc.Get(ctx, p.ID))

	require.NoError(t, f.cart.AddOrUpdate(ctx, user, p.ID, 2))
	order, err := f.orders.PlaceOrder(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, pc.Get(ctx, p.ID), "checkout drops the cached product")
	got, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	require.NoError(t, f.orders.CancelOrder(ctx, order.ID, user))
	assert.Nil(t, pc.Get(ctx, p.ID), "cancellation drops the cached product")
	got, err = f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

func TestProductCache_NilIsNoop(t *testing.T) {
	var c *ProductCache
	ctx := context.Background()

	c.Set(ctx, &model.Product{ID: uuid.New()})
	c.Invalidate(ctx, uuid.New())
	assert.Nil(t, c.Get(ctx, uuid.New()))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestProductCache_FollowStopsOnCancel(t *testing.T) {
	var c *ProductCache
	hub := notify.NewHub()
	sub := hub.Subscribe(notify.ForTopic(notify.TopicCatalog))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Follow(ctx, sub)
		close(done)
	}()

	hub.Publish(notify.Change{Topic: notify.TopicCatalog, ProductIDs: []uuid.UUID{uuid.New()}})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after cancel")
	}
	assert.Equal(t, 0, hub.Subscribers())
}

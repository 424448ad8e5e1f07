package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishFiltersByUser(t *testing.T) {
	hub := NewHub()
	alice, bob := uuid.New(), uuid.New()

	sub := hub.Subscribe(ForUser(TopicCart, alice))
	defer sub.Close()

	hub.Publish(
		Change{Topic: TopicCart, UserID: bob},
		Change{Topic: TopicOrders, UserID: alice},
		Change{Topic: TopicCart, UserID: alice},
	)

	require.Len(t, sub.C(), 1)
	got := <-sub.C()
	assert.Equal(t, alice, got.UserID)
	assert.Equal(t, TopicCart, got.Topic)
}

func TestHub_FullBufferMarksLagged(t *testing.T) {
	hub := NewHub()
	hub.buffer = 1
	sub := hub.Subscribe(Any())
	defer sub.Close()

	hub.Publish(Change{Topic: TopicCatalog}, Change{Topic: TopicCatalog})

	assert.True(t, sub.Lagged())
	assert.False(t, sub.Lagged())
	assert.Len(t, sub.C(), 1)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(nil)
	assert.Equal(t, 1, hub.Subscribers())

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.Subscribers())
	_, ok := <-sub.C()
	assert.False(t, ok)

	// publishing after close must not panic
	hub.Publish(Change{Topic: TopicCatalog})
}

func TestBatch_MergesAndFlushesOnce(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(ForTopic(TopicCatalog))
	defer sub.Close()

	p1, p2 := uuid.New(), uuid.New()
	var b Batch
	b.Record(Change{Topic: TopicCatalog, ProductIDs: []uuid.UUID{p1}})
	b.Record(Change{Topic: TopicCatalog, ProductIDs: []uuid.UUID{p2, p1}})
	assert.Equal(t, 1, b.Len())
	assert.Empty(t, sub.C())

	b.Flush(hub)
	b.Flush(hub)

	require.Len(t, sub.C(), 1)
	got := <-sub.C()
	assert.ElementsMatch(t, []uuid.UUID{p1, p2}, got.ProductIDs)
}

func TestOr(t *testing.T) {
	user := uuid.New()
	f := Or(ForTopic(TopicCatalog), ForUser(TopicCart, user))
	assert.True(t, f(Change{Topic: TopicCatalog}))
	assert.True(t, f(Change{Topic: TopicCart, UserID: user}))
	assert.False(t, f(Change{Topic: TopicCart, UserID: uuid.New()}))
}

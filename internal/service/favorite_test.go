package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavoriteService_AddListRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	a, b := f.product(t, "A", "1", 1), f.product(t, "B", "2", 0)

	require.NoError(t, f.favorites.Add(ctx, user, a.ID))
	require.NoError(t, f.favorites.Add(ctx, user, b.ID), "out of stock products can be favorites")
	require.NoError(t, f.favorites.Add(ctx, user, a.ID))

	products, err := f.favorites.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "B", products[0].SKU, "most recent first")

	n, err := f.favorites.Count(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, f.favorites.Remove(ctx, user, a.ID))
	require.NoError(t, f.favorites.Remove(ctx, user, a.ID))
	ok, err := f.favorites.IsFavorite(ctx, user, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.favorites.Clear(ctx, user))
	n, err = f.favorites.Count(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFavoriteService_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	p := f.product(t, "P", "1", 1)

	assert.ErrorIs(t, f.favorites.Add(ctx, user, uuid.New()), ErrNotFound)
	assert.ErrorIs(t, f.favorites.Add(ctx, uuid.New(), p.ID), ErrNotFound)
}

func TestFavoriteService_Toggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	p := f.product(t, "P", "1", 1)

	on, err := f.favorites.Toggle(ctx, user, p.ID)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = f.favorites.Toggle(ctx, user, p.ID)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestFavoriteService_Watch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	user := f.user(t, "alice")
	p := f.product(t, "P", "1", 1)

	ch, err := f.favorites.Watch(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, <-ch)

	require.NoError(t, f.favorites.Add(ctx, user, p.ID))
	assert.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return len(snap) == 1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

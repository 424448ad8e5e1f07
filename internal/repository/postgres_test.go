//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

func newProduct(sku, name string, price float64, stock int) *model.Product {
	return &model.Product{
		SKU: sku, Name: name, Price: decimal.NewFromFloat(price), Stock: stock, Active: true,
	}
}

func TestUserRepo_CreateAndGetByUsername(t *testing.T) {
	cleanupTables(t)
	gw := NewPgGateway(testPool, nil)
	ctx := context.Background()

	user := &model.User{Username: "alice", PasswordHash: "hashed"}
	require.NoError(t, gw.Users().Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)

	found, err := gw.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	err = gw.Users().Create(ctx, &model.User{Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	missing, err := gw.Users().GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, gw.Users().UpdatePassword(ctx, user.ID, "rehashed"))
	found, _ = gw.Users().GetByID(ctx, user.ID)
	assert.Equal(t, "rehashed", found.PasswordHash)
	assert.ErrorIs(t, gw.Users().UpdatePassword(ctx, uuid.New(), "x"), ErrNotFound)
}

func TestProductRepo_SaveIsVersionGuarded(t *testing.T) {
	cleanupTables(t)
	gw := NewPgGateway(testPool, nil)
	ctx := context.Background()

	p := newProduct("SKU-1", "Lamp", 29.99, 10)
	require.NoError(t, gw.Products().Insert(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	stale := *p
	p.Stock = 7
	require.NoError(t, gw.Products().Save(ctx, p))
	assert.Equal(t, int64(2), p.Version)

	stale.Stock = 1
	assert.ErrorIs(t, gw.Products().Save(ctx, &stale), ErrVersionConflict)

	found, err := gw.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, found.Stock)
	assert.True(t, decimal.NewFromFloat(29.99).Equal(found.Price))
}

func TestProductRepo_ListKeysetAndFilter(t *testing.T) {
	cleanupTables(t)
	gw := NewPgGateway(testPool, nil)
	ctx := context.Background()

	for _, p := range []*model.Product{
		newProduct("A", "Apple", 1, 5),
		newProduct("B", "Banana", 1, 0),
		newProduct("C", "Cherry", 1, 3),
		newProduct("D", "Date", 1, 8),
	} {
		require.NoError(t, gw.Products().Insert(ctx, p))
	}

	first, err := gw.Products().List(ctx, ProductQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Apple", first[0].Name)
	assert.Equal(t, "Cherry", first[1].Name)

	last := first[1]
	rest, err := gw.Products().List(ctx, ProductQuery{Limit: 2, After: &ProductCursor{Name: last.Name, ID: last.ID}})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "Date", rest[0].Name)

	total, err := gw.Products().Count(ctx, ProductQuery{IncludeUnavailable: true})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	found, err := gw.Products().List(ctx, ProductQuery{Search: "err"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Cherry", found[0].Name)
}

func TestCartRepo_UpsertLinesClear(t *testing.T) {
	cleanupTables(t)
	gw := NewPgGateway(testPool, nil)
	ctx := context.Background()

	user := &model.User{Username: "cart", PasswordHash: "h"}
	require.NoError(t, gw.Users().Create(ctx, user))
	p1 := newProduct("P1", "Pen", 2.5, 10)
	p2 := newProduct("P2", "Pad", 4, 10)
	require.NoError(t, gw.Products().Insert(ctx, p1))
	require.NoError(t, gw.Products().Insert(ctx, p2))

	require.NoError(t, gw.Carts().Upsert(ctx, &model.CartItem{UserID: user.ID, ProductID: p1.ID, Quantity: 2}))
	require.NoError(t, gw.Carts().Upsert(ctx, &model.CartItem{UserID: user.ID, ProductID: p2.ID, Quantity: 1}))
	require.NoError(t, gw.Carts().Upsert(ctx, &model.CartItem{UserID: user.ID, ProductID: p1.ID, Quantity: 3}))

	lines, err := gw.Carts().Lines(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, p1.ID, lines[0].Product.ID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.NewFromFloat(7.5).Equal(lines[0].LineTotal))

	removed, err := gw.Carts().Delete(ctx, user.ID, p2.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = gw.Carts().Delete(ctx, user.ID, p2.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := gw.Carts().Clear(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrderRepo_CreateGetStats(t *testing.T) {
	cleanupTables(t)
	gw := NewPgGateway(testPool, nil)
	ctx := context.Background()

	user := &model.User{Username: "order", PasswordHash: "h"}
	require.NoError(t, gw.Users().Create(ctx, user))
	p := newProduct("P", "Pen", 25, 10)
	require.NoError(t, gw.Products().Insert(ctx, p))

	order := &model.Order{
		ID:          uuid.New(),
		Number:      "ORD-TEST-1",
		UserID:      user.ID,
		Status:      model.OrderStatusPlaced,
		TotalAmount: decimal.NewFromInt(50),
		Shipping:    model.Shipping{Address: "1 Main St"},
		Lines: []model.OrderLine{
			{ProductID: p.ID, ProductName: p.Name, Quantity: 2, UnitPrice: p.Price},
		},
	}
	require.NoError(t, gw.Orders().Create(ctx, order))

	found, err := gw.Orders().GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.OrderStatusPlaced, found.Status)
	assert.Equal(t, "1 Main St", found.Shipping.Address)
	require.Len(t, found.Lines, 1)
	assert.Equal(t, 2, found.Lines[0].Quantity)

	require.NoError(t, gw.Orders().UpdateStatus(ctx, order.ID, model.OrderStatusCancelled))
	stats, err := gw.Orders().Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 1, stats.Cancelled)
	assert.True(t, stats.TotalSpent.IsZero())

	list, err := gw.Orders().ListByUser(ctx, user.ID, OrderFilter{Status: model.OrderStatusPlaced})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPgGateway_InTxRollsBackAndPublishesAfterCommit(t *testing.T) {
	cleanupTables(t)
	hub := notify.NewHub()
	sub := hub.Subscribe(notify.ForTopic(notify.TopicCatalog))
	defer sub.Close()
	gw := NewPgGateway(testPool, hub)
	ctx := context.Background()

	boom := errors.New("boom")
	err := gw.InTx(ctx, func(s Store) error {
		if err := s.Products().Insert(ctx, newProduct("X", "Ghost", 1, 1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, sub.C())

	p, err := gw.Products().LockBySKU(ctx, "X")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, gw.InTx(ctx, func(s Store) error {
		return s.Products().Insert(ctx, newProduct("Y", "Real", 1, 1))
	}))
	assert.Len(t, sub.C(), 1)
}

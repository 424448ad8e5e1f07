package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/go-ecommerce-core/internal/logging"
	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
	"github.com/flicky/go-ecommerce-core/internal/repository/memory"
)

type fixture struct {
	gw        repository.Gateway
	hub       *notify.Hub
	auth      *AuthService
	catalog   *CatalogService
	cart      *CartService
	favorites *FavoriteService
	reviews   *ReviewService
	orders    *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := notify.NewHub()
	return newFixtureWith(t, hub, memory.New(hub))
}

func newFixtureWith(t *testing.T, hub *notify.Hub, gw repository.Gateway) *fixture {
	t.Helper()
	log := logging.Discard()
	return &fixture{
		gw:        gw,
		hub:       hub,
		auth:      NewAuthService(gw, NewBcryptHasher(bcrypt.MinCost), SessionConfig{Secret: "test-secret", TTL: time.Hour}),
		catalog:   NewCatalogService(gw, hub, nil, 2, log),
		cart:      NewCartService(gw, hub, log),
		favorites: NewFavoriteService(gw, hub, log),
		reviews:   NewReviewService(gw, hub, log),
		orders:    NewOrderService(gw, hub, nil, log, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}),
	}
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id, err := f.auth.Register(context.Background(), name, "password123")
	require.NoError(t, err)
	return id
}

func (f *fixture) product(t *testing.T, sku string, price string, stock int) model.Product {
	t.Helper()
	out, err := f.catalog.BulkUpsert(context.Background(), []model.ProductInput{{
		SKU:    sku,
		Name:   "Product " + sku,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}})
	require.NoError(t, err)
	return out[0]
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.gw.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

// faultyGateway fails bulk cart deletes inside transactions, after the
// order engine has already written the order and stock.
type faultyGateway struct {
	repository.Gateway
	err error
}

func (g *faultyGateway) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return g.Gateway.InTx(ctx, func(s repository.Store) error {
		return fn(faultyStore{Store: s, err: g.err})
	})
}

type faultyStore struct {
	repository.Store
	err error
}

func (s faultyStore) Carts() repository.CartRepository {
	return faultyCarts{CartRepository: s.Store.Carts(), err: s.err}
}

type faultyCarts struct {
	repository.CartRepository
	err error
}

func (c faultyCarts) DeleteMany(context.Context, uuid.UUID, []uuid.UUID) (int, error) {
	return 0, c.err
}

// flakyGateway reports a serialization conflict for the next failures
// transactions once armed.
type flakyGateway struct {
	repository.Gateway
	failures int32
	armed    atomic.Bool
	calls    *atomic.Int32
}

func (g *flakyGateway) InTx(ctx context.Context, fn func(repository.Store) error) error {
	if g.armed.Load() {
		if n := g.calls.Add(1); n <= g.failures {
			return fmt.Errorf("commit: %w", repository.ErrTxConflict)
		}
	}
	return g.Gateway.InTx(ctx, fn)
}

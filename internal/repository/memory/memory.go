// Package memory is an in-process repository.Gateway. Transactions are
// serialized on one mutex and applied copy-on-write, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type reviewKey struct {
	userID, productID uuid.UUID
}

type state struct {
	users         map[uuid.UUID]model.User
	usernames     map[string]uuid.UUID
	emails        map[string]uuid.UUID
	categories    map[uuid.UUID]model.Category
	categoryNames map[string]uuid.UUID
	products      map[uuid.UUID]model.Product
	skus          map[string]uuid.UUID
	carts         map[uuid.UUID][]model.CartItem
	favorites     map[uuid.UUID][]model.Favorite
	reviews       map[reviewKey]model.Review
	orders        map[uuid.UUID]model.Order
	orderNames    map[string]uuid.UUID
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]model.User),
		usernames:     make(map[string]uuid.UUID),
		emails:        make(map[string]uuid.UUID),
		categories:    make(map[uuid.UUID]model.Category),
		categoryNames: make(map[string]uuid.UUID),
		products:      make(map[uuid.UUID]model.Product),
		skus:          make(map[string]uuid.UUID),
		carts:         make(map[uuid.UUID][]model.CartItem),
		favorites:     make(map[uuid.UUID][]model.Favorite),
		reviews:       make(map[reviewKey]model.Review),
		orders:        make(map[uuid.UUID]model.Order),
		orderNames:    make(map[string]uuid.UUID),
	}
}

// clone copies everything a transaction may mutate in place. Order lines
// are never mutated and stay shared.
func (s *state) clone() *state {
	return &state{
		users:         maps.Clone(s.users),
		usernames:     maps.Clone(s.usernames),
		emails:        maps.Clone(s.emails),
		categories:    maps.Clone(s.categories),
		categoryNames: maps.Clone(s.categoryNames),
		products:      maps.Clone(s.products),
		skus:          maps.Clone(s.skus),
		carts:         cloneLists(s.carts),
		favorites:     cloneLists(s.favorites),
		reviews:       maps.Clone(s.reviews),
		orders:        maps.Clone(s.orders),
		orderNames:    maps.Clone(s.orderNames),
	}
}

func cloneLists[T any](m map[uuid.UUID][]T) map[uuid.UUID][]T {
	out := make(map[uuid.UUID][]T, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

type Gateway struct {
	mu  sync.Mutex
	st  *state
	hub *notify.Hub
	now func() time.Time
}

var _ repository.Gateway = (*Gateway)(nil)

func New(hub *notify.Hub) *Gateway {
	return &Gateway{st: newState(), hub: hub, now: time.Now}
}

func (g *Gateway) direct() *store {
	return &store{
		mu:    &g.mu,
		state: func() *state { return g.st },
		rec:   notify.Direct{Hub: g.hub},
		now:   g.now,
	}
}

func (g *Gateway) Users() repository.UserRepository          { return userRepo{g.direct()} }
func (g *Gateway) Categories() repository.CategoryRepository { return categoryRepo{g.direct()} }
func (g *Gateway) Products() repository.ProductRepository    { return productRepo{g.direct()} }
func (g *Gateway) Carts() repository.CartRepository          { return cartRepo{g.direct()} }
func (g *Gateway) Favorites() repository.FavoriteRepository  { return favoriteRepo{g.direct()} }
func (g *Gateway) Reviews() repository.ReviewRepository      { return reviewRepo{g.direct()} }
func (g *Gateway) Orders() repository.OrderRepository        { return orderRepo{g.direct()} }

// InTx holds the gateway lock for the whole of fn. fn must only use the
// Store it is given.
func (g *Gateway) InTx(_ context.Context, fn func(repository.Store) error) error {
	var batch notify.Batch
	err := func() error {
		g.mu.Lock()
		defer g.mu.Unlock()

		work := g.st.clone()
		s := &store{
			mu:    noLock{},
			state: func() *state { return work },
			rec:   &batch,
			now:   g.now,
		}
		if err := fn(s); err != nil {
			return err
		}
		g.st = work
		return nil
	}()
	if err != nil {
		return err
	}
	batch.Flush(g.hub)
	return nil
}

func (g *Gateway) Ping(context.Context) error { return nil }

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

type store struct {
	mu    sync.Locker
	state func() *state
	rec   notify.Recorder
	now   func() time.Time
}

func (s *store) Users() repository.UserRepository          { return userRepo{s} }
func (s *store) Categories() repository.CategoryRepository { return categoryRepo{s} }
func (s *store) Products() repository.ProductRepository    { return productRepo{s} }
func (s *store) Carts() repository.CartRepository          { return cartRepo{s} }
func (s *store) Favorites() repository.FavoriteRepository  { return favoriteRepo{s} }
func (s *store) Reviews() repository.ReviewRepository      { return reviewRepo{s} }
func (s *store) Orders() repository.OrderRepository        { return orderRepo{s} }

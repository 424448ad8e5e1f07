package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

// FavoriteService keeps each user's wish list. Favorites do not reserve
// stock and are independent of the cart.
type FavoriteService struct {
	gw  repository.Gateway
	hub *notify.Hub
	log *slog.Logger
}

func NewFavoriteService(gw repository.Gateway, hub *notify.Hub, log *slog.Logger) *FavoriteService {
	return &FavoriteService{gw: gw, hub: hub, log: log}
}

// Add marks a product as a favorite. Adding it again is a no-op.
func (s *FavoriteService) Add(ctx context.Context, userID, productID uuid.UUID) error {
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		user, err := st.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		product, err := st.Products().GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if user == nil || product == nil {
			return ErrNotFound
		}
		_, err = st.Favorites().Add(ctx, &model.Favorite{UserID: userID, ProductID: productID})
		return err
	})
	return classify("add favorite", err)
}

func (s *FavoriteService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	if _, err := s.gw.Favorites().Remove(ctx, userID, productID); err != nil {
		return classify("remove favorite", err)
	}
	return nil
}

// Toggle flips the favorite state and reports the new one.
func (s *FavoriteService) Toggle(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	on, err := s.IsFavorite(ctx, userID, productID)
	if err != nil {
		return false, err
	}
	if on {
		return false, s.Remove(ctx, userID, productID)
	}
	return true, s.Add(ctx, userID, productID)
}

// List returns the user's favorite products, most recently added first.
func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID) ([]model.Product, error) {
	products, err := s.gw.Favorites().Products(ctx, userID)
	if err != nil {
		return nil, classify("list favorites", err)
	}
	return products, nil
}

func (s *FavoriteService) IsFavorite(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	ok, err := s.gw.Favorites().Contains(ctx, userID, productID)
	if err != nil {
		return false, classify("check favorite", err)
	}
	return ok, nil
}

func (s *FavoriteService) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.gw.Favorites().Count(ctx, userID)
	if err != nil {
		return 0, classify("count favorites", err)
	}
	return n, nil
}

func (s *FavoriteService) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.gw.Favorites().Clear(ctx, userID); err != nil {
		return classify("clear favorites", err)
	}
	return nil
}

// Watch streams the user's favorites after every change to them or to the
// catalog.
func (s *FavoriteService) Watch(ctx context.Context, userID uuid.UUID) (<-chan []model.Product, error) {
	filter := notify.Or(notify.ForUser(notify.TopicFavorites, userID), notify.ForTopic(notify.TopicCatalog))
	return feed(ctx, s.hub, filter, s.log, func(ctx context.Context) ([]model.Product, error) {
		return s.List(ctx, userID)
	})
}

package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type CartService struct {
	gw  repository.Gateway
	hub *notify.Hub
	log *slog.Logger
}

func NewCartService(gw repository.Gateway, hub *notify.Hub, log *slog.Logger) *CartService {
	return &CartService{gw: gw, hub: hub, log: log}
}

// AddOrUpdate sets the quantity of a product in the user's cart. A
// quantity of zero or less removes the line. The write happens under the
// user's row lock, so it lands either before or after a checkout of the
// same cart, and the stock check under the product's.
func (s *CartService) AddOrUpdate(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, userID, productID)
	}

	err := s.gw.InTx(ctx, func(st repository.Store) error {
		user, err := st.Users().Lock(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}

		product, err := st.Products().Lock(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil || !product.Active {
			return ErrNotFound
		}
		if quantity > product.Stock {
			return &InsufficientStockError{ProductID: productID, Requested: quantity, Available: product.Stock}
		}

		return st.Carts().Upsert(ctx, &model.CartItem{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
		})
	})
	return classify("add to cart", err)
}

// Remove is a no-op when the product is not in the cart.
func (s *CartService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		if _, err := st.Users().Lock(ctx, userID); err != nil {
			return err
		}
		_, err := st.Carts().Delete(ctx, userID, productID)
		return err
	})
	return classify("remove from cart", err)
}

// View joins the cart with the current catalog. Quantities are not
// re-checked against stock.
func (s *CartService) View(ctx context.Context, userID uuid.UUID) (*model.CartView, error) {
	lines, err := s.gw.Carts().Lines(ctx, userID)
	if err != nil {
		return nil, classify("view cart", err)
	}
	view := &model.CartView{UserID: userID, Lines: lines, Total: decimal.Zero}
	for _, l := range lines {
		view.TotalQuantity += l.Quantity
		view.Total = view.Total.Add(l.LineTotal)
	}
	return view, nil
}

func (s *CartService) Summary(ctx context.Context, userID uuid.UUID) (*model.CartSummary, error) {
	view, err := s.View(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.CartSummary{
		Items:         len(view.Lines),
		TotalQuantity: view.TotalQuantity,
		Total:         view.Total,
	}, nil
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		if _, err := st.Users().Lock(ctx, userID); err != nil {
			return err
		}
		_, err := st.Carts().Clear(ctx, userID)
		return err
	})
	return classify("clear cart", err)
}

// Watch streams the user's cart after every change to it or to the catalog
// it is priced from.
func (s *CartService) Watch(ctx context.Context, userID uuid.UUID) (<-chan model.CartView, error) {
	filter := notify.Or(notify.ForUser(notify.TopicCart, userID), notify.ForTopic(notify.TopicCatalog))
	return feed(ctx, s.hub, filter, s.log, func(ctx context.Context) (model.CartView, error) {
		view, err := s.View(ctx, userID)
		if err != nil {
			return model.CartView{}, err
		}
		return *view, nil
	})
}

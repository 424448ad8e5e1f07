package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/cache"
	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

// RetryPolicy bounds automatic checkout retries on stock conflicts. The
// wait before retry n is n*Backoff.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

type OrderOption func(*orderOptions)

type orderOptions struct {
	shipping model.Shipping
}

func WithShipping(shipping model.Shipping) OrderOption {
	return func(o *orderOptions) { o.shipping = shipping }
}

type OrderFilter struct {
	Status model.OrderStatus
	Limit  int
}

type OrderService struct {
	gw    repository.Gateway
	hub   *notify.Hub
	cache *cache.ProductCache
	log   *slog.Logger
	retry RetryPolicy
	now   func() time.Time
}

// NewOrderService accepts a nil cache. Checkout and cancellation drop the
// cached products whose stock they changed before returning.
func NewOrderService(gw repository.Gateway, hub *notify.Hub, pc *cache.ProductCache, log *slog.Logger, retry RetryPolicy) *OrderService {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &OrderService{gw: gw, hub: hub, cache: pc, log: log, retry: retry, now: time.Now}
}

// PlaceOrder turns the user's cart into an order. Stock is checked against
// rows locked by the same transaction that decrements it, so either every
// line is bought at the current price or nothing changes.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, opts ...OrderOption) (*model.Order, error) {
	var o orderOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := check(o.shipping); err != nil {
		return nil, err
	}

	var err error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		var order *model.Order
		order, err = s.placeOnce(ctx, userID, o)
		if err == nil {
			s.cache.Invalidate(ctx, order.ProductIDs()...)
			s.log.Info("order placed",
				"order_id", order.ID, "number", order.Number,
				"user_id", userID, "total", order.TotalAmount.String(), "attempt", attempt)
			return order, nil
		}
		if !retryable(err) || attempt == s.retry.Attempts {
			break
		}
		s.log.Debug("retrying order placement", "user_id", userID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, classify("place order", checkoutConflict(err))
		case <-time.After(time.Duration(attempt) * s.retry.Backoff):
		}
	}
	return nil, classify("place order", checkoutConflict(err))
}

// placeOnce locks the user row first, so the cart it reads cannot change
// until the order commits.
func (s *OrderService) placeOnce(ctx context.Context, userID uuid.UUID, o orderOptions) (*model.Order, error) {
	var order *model.Order
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		user, err := st.Users().Lock(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}

		items, err := st.Carts().Items(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		ids := make([]uuid.UUID, len(items))
		for i, it := range items {
			ids[i] = it.ProductID
		}
		products, err := st.Products().LockMany(ctx, ids)
		if err != nil {
			return err
		}

		var conflicts []uuid.UUID
		for _, it := range items {
			p := products[it.ProductID]
			if p == nil || !p.Active || it.Quantity > p.Stock {
				conflicts = append(conflicts, it.ProductID)
			}
		}
		if len(conflicts) > 0 {
			return &StockConflictError{Products: conflicts}
		}

		id := uuid.New()
		order = &model.Order{
			ID:       id,
			Number:   orderNumber(s.now(), id),
			UserID:   userID,
			Status:   model.OrderStatusPlaced,
			Shipping: o.shipping,
		}
		total := decimal.Zero
		for _, it := range items {
			p := products[it.ProductID]
			line := model.OrderLine{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				UnitPrice:   p.Price,
			}
			total = total.Add(line.Total())
			order.Lines = append(order.Lines, line)
		}
		order.TotalAmount = total

		if err := st.Orders().Create(ctx, order); err != nil {
			return err
		}
		for _, it := range items {
			p := products[it.ProductID]
			p.Stock -= it.Quantity
			if err := st.Products().Save(ctx, p); err != nil {
				return err
			}
		}
		_, err = st.Carts().DeleteMany(ctx, userID, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func checkoutConflict(err error) error {
	if errors.Is(err, repository.ErrTxConflict) {
		return fmt.Errorf("%w: %w", ErrStockConflict, err)
	}
	return err
}

func orderNumber(at time.Time, id uuid.UUID) string {
	return "ORD-" + at.UTC().Format("20060102") + "-" + strings.ToUpper(id.String()[:8])
}

// CancelOrder flips a placed order to cancelled and returns its quantities
// to stock in the same transaction.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) error {
	var restored []uuid.UUID
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		order, err := st.Orders().Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrNotFound
		}
		if order.UserID != userID {
			return ErrForbidden
		}
		if order.Status == model.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s is already cancelled", ErrInvalidState, order.Number)
		}

		restore := make(map[uuid.UUID]int, len(order.Lines))
		ids := make([]uuid.UUID, 0, len(order.Lines))
		for _, l := range order.Lines {
			if _, ok := restore[l.ProductID]; !ok {
				ids = append(ids, l.ProductID)
			}
			restore[l.ProductID] += l.Quantity
		}
		products, err := st.Products().LockMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			p := products[id]
			if p == nil {
				return fmt.Errorf("restore stock: product %s is missing", id)
			}
			p.Stock += restore[id]
			if err := st.Products().Save(ctx, p); err != nil {
				return err
			}
		}
		if err := st.Orders().UpdateStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
			return err
		}
		restored = ids
		return nil
	})
	if err != nil {
		return classify("cancel order", err)
	}
	s.cache.Invalidate(ctx, restored...)
	s.log.Info("order cancelled", "order_id", orderID, "user_id", userID)
	return nil
}

func (s *OrderService) Get(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.gw.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, classify("get order", err)
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	return order, nil
}

// List returns the user's orders, newest first.
func (s *OrderService) List(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]model.Order, error) {
	orders, err := s.gw.Orders().ListByUser(ctx, userID, repository.OrderFilter{
		Status: filter.Status,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) Stats(ctx context.Context, userID uuid.UUID) (*model.OrderStats, error) {
	stats, err := s.gw.Orders().Stats(ctx, userID)
	if err != nil {
		return nil, classify("order stats", err)
	}
	return stats, nil
}

func (s *OrderService) Watch(ctx context.Context, userID uuid.UUID) (<-chan []model.Order, error) {
	return feed(ctx, s.hub, notify.ForUser(notify.TopicOrders, userID), s.log,
		func(ctx context.Context) ([]model.Order, error) {
			return s.List(ctx, userID, OrderFilter{})
		})
}

package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type orderRepo struct{ s *store }

func (r orderRepo) Create(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if _, ok := st.users[order.UserID]; !ok {
		return fmt.Errorf("insert order: user %s: %w", order.UserID, errForeignKey)
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if _, ok := st.orders[order.ID]; ok {
		return fmt.Errorf("insert order: %w", repository.ErrUniqueViolation)
	}
	if _, ok := st.orderNames[order.Number]; ok {
		return fmt.Errorf("insert order: %w", repository.ErrUniqueViolation)
	}
	for i := range order.Lines {
		order.Lines[i].ID = uuid.New()
		order.Lines[i].OrderID = order.ID
	}
	now := r.s.now()
	order.CreatedAt, order.UpdatedAt = now, now

	stored := *order
	stored.Lines = slices.Clone(order.Lines)
	st.orders[order.ID] = stored
	st.orderNames[order.Number] = order.ID
	r.s.rec.Record(notify.Change{Topic: notify.TopicOrders, UserID: order.UserID})
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.state().orders[id]
	if !ok {
		return nil, nil
	}
	o.Lines = slices.Clone(o.Lines)
	return &o, nil
}

func (r orderRepo) Lock(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.GetByID(ctx, id)
}

func (r orderRepo) ListByUser(_ context.Context, userID uuid.UUID, filter repository.OrderFilter) ([]model.Order, error) {
	r.s.mu.Lock()
	var orders []model.Order
	for _, o := range r.s.state().orders {
		if o.UserID != userID || (filter.Status != "" && o.Status != filter.Status) {
			continue
		}
		o.Lines = slices.Clone(o.Lines)
		orders = append(orders, o)
	}
	r.s.mu.Unlock()

	slices.SortFunc(orders, func(a, b model.Order) int {
		return cmp.Or(
			b.CreatedAt.Compare(a.CreatedAt),
			strings.Compare(a.ID.String(), b.ID.String()),
		)
	})
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	o, ok := st.orders[id]
	if !ok {
		return fmt.Errorf("update order status: %w", repository.ErrNotFound)
	}
	o.Status = status
	o.UpdatedAt = r.s.now()
	st.orders[id] = o
	r.s.rec.Record(notify.Change{Topic: notify.TopicOrders, UserID: o.UserID})
	return nil
}

func (r orderRepo) Stats(_ context.Context, userID uuid.UUID) (*model.OrderStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := &model.OrderStats{TotalSpent: decimal.Zero}
	for _, o := range r.s.state().orders {
		if o.UserID != userID {
			continue
		}
		stats.Count++
		switch o.Status {
		case model.OrderStatusPlaced:
			stats.Placed++
			stats.TotalSpent = stats.TotalSpent.Add(o.TotalAmount)
		case model.OrderStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

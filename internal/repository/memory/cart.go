package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

var errForeignKey = errors.New("foreign key violation")

type cartRepo struct{ s *store }

func (r cartRepo) Items(_ context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.state().carts[userID]), nil
}

func (r cartRepo) Lines(_ context.Context, userID uuid.UUID) ([]model.CartLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	var lines []model.CartLine
	for _, item := range st.carts[userID] {
		p, ok := st.products[item.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, model.CartLine{
			Product:   p,
			Quantity:  item.Quantity,
			LineTotal: p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return lines, nil
}

func (r cartRepo) Upsert(_ context.Context, item *model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if _, ok := st.users[item.UserID]; !ok {
		return fmt.Errorf("upsert cart item: user %s: %w", item.UserID, errForeignKey)
	}
	if _, ok := st.products[item.ProductID]; !ok {
		return fmt.Errorf("upsert cart item: product %s: %w", item.ProductID, errForeignKey)
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("upsert cart item: quantity %d must be positive", item.Quantity)
	}

	now := r.s.now()
	items := st.carts[item.UserID]
	i := slices.IndexFunc(items, func(c model.CartItem) bool { return c.ProductID == item.ProductID })
	if i >= 0 {
		item.AddedAt = items[i].AddedAt
		item.UpdatedAt = now
		items[i] = *item
	} else {
		item.AddedAt, item.UpdatedAt = now, now
		items = append(items, *item)
	}
	st.carts[item.UserID] = items
	r.s.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: item.UserID})
	return nil
}

func (r cartRepo) Delete(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	items := st.carts[userID]
	i := slices.IndexFunc(items, func(c model.CartItem) bool { return c.ProductID == productID })
	if i < 0 {
		return false, nil
	}
	st.carts[userID] = slices.Delete(items, i, i+1)
	if len(st.carts[userID]) == 0 {
		delete(st.carts, userID)
	}
	r.s.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: userID})
	return true, nil
}

func (r cartRepo) DeleteMany(_ context.Context, userID uuid.UUID, productIDs []uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	items := st.carts[userID]
	kept := slices.DeleteFunc(items, func(c model.CartItem) bool { return slices.Contains(productIDs, c.ProductID) })
	n := len(items) - len(kept)
	if n == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		delete(st.carts, userID)
	} else {
		st.carts[userID] = kept
	}
	r.s.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: userID})
	return n, nil
}

func (r cartRepo) Clear(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	n := len(st.carts[userID])
	if n == 0 {
		return 0, nil
	}
	delete(st.carts, userID)
	r.s.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: userID})
	return n, nil
}

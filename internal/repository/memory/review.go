package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

type reviewRepo struct{ s *store }

func (r reviewRepo) Upsert(_ context.Context, rv *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if _, ok := st.users[rv.UserID]; !ok {
		return fmt.Errorf("upsert review: user %s: %w", rv.UserID, errForeignKey)
	}
	if _, ok := st.products[rv.ProductID]; !ok {
		return fmt.Errorf("upsert review: product %s: %w", rv.ProductID, errForeignKey)
	}
	if rv.Rating < 1 || rv.Rating > 5 {
		return fmt.Errorf("upsert review: rating %d out of range", rv.Rating)
	}

	key := reviewKey{rv.UserID, rv.ProductID}
	now := r.s.now()
	if prev, ok := st.reviews[key]; ok {
		rv.ID, rv.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		if rv.ID == uuid.Nil {
			rv.ID = uuid.New()
		}
		rv.CreatedAt = now
	}
	rv.UpdatedAt = now
	stored := *rv
	stored.Username = ""
	st.reviews[key] = stored
	r.s.rec.Record(notify.Change{Topic: notify.TopicReviews, ProductIDs: []uuid.UUID{rv.ProductID}})
	return nil
}

func (r reviewRepo) Delete(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	key := reviewKey{userID, productID}
	if _, ok := st.reviews[key]; !ok {
		return false, nil
	}
	delete(st.reviews, key)
	r.s.rec.Record(notify.Change{Topic: notify.TopicReviews, ProductIDs: []uuid.UUID{productID}})
	return true, nil
}

func (r reviewRepo) ListByProduct(_ context.Context, productID uuid.UUID, limit int) ([]model.Review, error) {
	r.s.mu.Lock()
	st := r.s.state()
	var out []model.Review
	for key, rv := range st.reviews {
		if key.productID != productID {
			continue
		}
		rv.Username = st.users[key.userID].Username
		out = append(out, rv)
	}
	r.s.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Review) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r reviewRepo) Rating(_ context.Context, productID uuid.UUID) (*model.Rating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rating := &model.Rating{ProductID: productID, Average: decimal.Zero}
	sum := 0
	for key, rv := range r.s.state().reviews {
		if key.productID == productID {
			rating.Count++
			sum += rv.Rating
		}
	}
	if rating.Count > 0 {
		rating.Average = decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(rating.Count)))
	}
	return rating, nil
}

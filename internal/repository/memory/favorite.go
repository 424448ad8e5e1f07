package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

// favoriteRepo keeps each user's favorites in the order they were added.
type favoriteRepo struct{ s *store }

func (r favoriteRepo) Add(_ context.Context, fav *model.Favorite) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if _, ok := st.users[fav.UserID]; !ok {
		return false, fmt.Errorf("add favorite: user %s: %w", fav.UserID, errForeignKey)
	}
	if _, ok := st.products[fav.ProductID]; !ok {
		return false, fmt.Errorf("add favorite: product %s: %w", fav.ProductID, errForeignKey)
	}
	if r.index(fav.UserID, fav.ProductID) >= 0 {
		return false, nil
	}
	fav.AddedAt = r.s.now()
	st.favorites[fav.UserID] = append(st.favorites[fav.UserID], *fav)
	r.s.rec.Record(notify.Change{Topic: notify.TopicFavorites, UserID: fav.UserID})
	return true, nil
}

func (r favoriteRepo) index(userID, productID uuid.UUID) int {
	return slices.IndexFunc(r.s.state().favorites[userID], func(f model.Favorite) bool {
		return f.ProductID == productID
	})
}

func (r favoriteRepo) Remove(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	i := r.index(userID, productID)
	if i < 0 {
		return false, nil
	}
	st.favorites[userID] = slices.Delete(st.favorites[userID], i, i+1)
	if len(st.favorites[userID]) == 0 {
		delete(st.favorites, userID)
	}
	r.s.rec.Record(notify.Change{Topic: notify.TopicFavorites, UserID: userID})
	return true, nil
}

func (r favoriteRepo) Products(_ context.Context, userID uuid.UUID) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	favs := st.favorites[userID]
	out := make([]model.Product, 0, len(favs))
	for i := len(favs) - 1; i >= 0; i-- {
		if p, ok := st.products[favs[i].ProductID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r favoriteRepo) Contains(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.index(userID, productID) >= 0, nil
}

func (r favoriteRepo) Count(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.state().favorites[userID]), nil
}

func (r favoriteRepo) Clear(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	n := len(st.favorites[userID])
	if n == 0 {
		return 0, nil
	}
	delete(st.favorites, userID)
	r.s.rec.Record(notify.Change{Topic: notify.TopicFavorites, UserID: userID})
	return n, nil
}

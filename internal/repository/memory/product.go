package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type productRepo struct{ s *store }

func (r productRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.state().products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r productRepo) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := st.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (r productRepo) Lock(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.GetByID(ctx, id)
}

func (r productRepo) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	return r.GetMany(ctx, ids)
}

func (r productRepo) LockBySKU(_ context.Context, sku string) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	id, ok := st.skus[sku]
	if !ok {
		return nil, nil
	}
	p := st.products[id]
	return &p, nil
}

func (r productRepo) List(_ context.Context, q repository.ProductQuery) ([]model.Product, error) {
	r.s.mu.Lock()
	matched := r.filter(q)
	r.s.mu.Unlock()

	slices.SortFunc(matched, compareProducts)
	if q.After != nil {
		after := model.Product{Name: q.After.Name, ID: q.After.ID}
		i, _ := slices.BinarySearchFunc(matched, after, compareProducts)
		for i < len(matched) && compareProducts(matched[i], after) <= 0 {
			i++
		}
		matched = matched[i:]
	} else if q.Offset > 0 {
		matched = matched[min(q.Offset, len(matched)):]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (r productRepo) Count(_ context.Context, q repository.ProductQuery) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(q)), nil
}

func (r productRepo) filter(q repository.ProductQuery) []model.Product {
	search := strings.ToLower(q.Search)
	var out []model.Product
	for _, p := range r.s.state().products {
		if !q.IncludeUnavailable && !p.Available() {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if q.CategoryID != uuid.Nil && p.CategoryID != q.CategoryID {
			continue
		}
		if q.Brand != "" && !strings.EqualFold(p.Brand, q.Brand) {
			continue
		}
		if q.MinPrice.Valid && p.Price.LessThan(q.MinPrice.Decimal) {
			continue
		}
		if q.MaxPrice.Valid && p.Price.GreaterThan(q.MaxPrice.Decimal) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func compareProducts(a, b model.Product) int {
	return cmp.Or(
		strings.Compare(a.Name, b.Name),
		strings.Compare(a.ID.String(), b.ID.String()),
	)
}

func (r productRepo) Insert(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if _, ok := st.skus[p.SKU]; ok {
		return fmt.Errorf("insert product: %w", repository.ErrUniqueViolation)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := st.products[p.ID]; ok {
		return fmt.Errorf("insert product: %w", repository.ErrUniqueViolation)
	}
	now := r.s.now()
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now
	st.products[p.ID] = *p
	st.skus[p.SKU] = p.ID
	r.s.rec.Record(notify.Change{Topic: notify.TopicCatalog, ProductIDs: []uuid.UUID{p.ID}})
	return nil
}

func (r productRepo) Save(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	stored, ok := st.products[p.ID]
	if !ok || stored.Version != p.Version {
		return fmt.Errorf("save product %s: %w", p.ID, repository.ErrVersionConflict)
	}
	if p.SKU != stored.SKU {
		if _, taken := st.skus[p.SKU]; taken {
			return fmt.Errorf("save product: %w", repository.ErrUniqueViolation)
		}
		delete(st.skus, stored.SKU)
		st.skus[p.SKU] = p.ID
	}
	p.Version++
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = r.s.now()
	st.products[p.ID] = *p
	r.s.rec.Record(notify.Change{Topic: notify.TopicCatalog, ProductIDs: []uuid.UUID{p.ID}})
	return nil
}

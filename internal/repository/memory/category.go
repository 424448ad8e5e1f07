package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type categoryRepo struct{ s *store }

func (r categoryRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.state().categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r categoryRepo) List(_ context.Context) ([]model.Category, error) {
	r.s.mu.Lock()
	out := make([]model.Category, 0, len(r.s.state().categories))
	for _, c := range r.s.state().categories {
		out = append(out, c)
	}
	r.s.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Category) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (r categoryRepo) Create(_ context.Context, c *model.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.state().categoryNames[c.Name]; ok {
		return fmt.Errorf("create category: %w", repository.ErrUniqueViolation)
	}
	r.insert(c)
	return nil
}

func (r categoryRepo) Ensure(_ context.Context, c *model.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if id, ok := st.categoryNames[c.Name]; ok {
		*c = st.categories[id]
		return nil
	}
	r.insert(c)
	return nil
}

func (r categoryRepo) insert(c *model.Category) {
	st := r.s.state()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = r.s.now()
	st.categories[c.ID] = *c
	st.categoryNames[c.Name] = c.ID
	r.s.rec.Record(notify.Change{Topic: notify.TopicCatalog})
}

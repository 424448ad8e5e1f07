package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

const categoryColumns = `id, name, description, created_at`

type pgCategoryRepo struct {
	db  DBTX
	rec notify.Recorder
}

func (r *pgCategoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *pgCategoryRepo) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *pgCategoryRepo) Create(ctx context.Context, c *model.Category) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (id, name, description, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING created_at`,
		c.ID, c.Name, c.Description,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create category: %w", classify(err))
	}
	r.rec.Record(notify.Change{Topic: notify.TopicCatalog})
	return nil
}

// Ensure leaves an existing row untouched. The no-op update makes
// RETURNING yield the stored row on conflict.
func (r *pgCategoryRepo) Ensure(ctx context.Context, c *model.Category) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	var inserted bool
	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (id, name, description, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING `+categoryColumns+`, (xmax = 0)`,
		c.ID, c.Name, c.Description,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &inserted)
	if err != nil {
		return fmt.Errorf("ensure category: %w", classify(err))
	}
	if inserted {
		r.rec.Record(notify.Change{Topic: notify.TopicCatalog})
	}
	return nil
}

func scanCategory(row scanner) (*model.Category, error) {
	c := &model.Category{}
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

const productColumns = `id, sku, name, description, price, stock, category_id, brand, version, active, created_at, updated_at`

// joinedProductColumns is productColumns qualified for queries that join
// products as p.
const joinedProductColumns = `p.id, p.sku, p.name, p.description, p.price, p.stock, p.category_id, p.brand,
		p.version, p.active, p.created_at, p.updated_at`

type pgProductRepo struct {
	db  DBTX
	rec notify.Recorder
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	return r.many(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
}

func (r *pgProductRepo) Lock(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", classify(err))
	}
	return p, nil
}

func (r *pgProductRepo) LockBySKU(ctx context.Context, sku string) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1 FOR UPDATE`, sku,
	))
	if err != nil {
		return nil, fmt.Errorf("lock product by sku: %w", classify(err))
	}
	return p, nil
}

func (r *pgProductRepo) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return r.many(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
}

func (r *pgProductRepo) many(ctx context.Context, query string, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get products: %w", classify(err))
	}
	return out, nil
}

func (r *pgProductRepo) List(ctx context.Context, q ProductQuery) ([]model.Product, error) {
	where, args := productFilter(q)
	if q.After != nil {
		args = append(args, q.After.Name, q.After.ID)
		where += fmt.Sprintf(" AND (name, id) > ($%d, $%d)", len(args)-1, len(args))
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE ` + where + ` ORDER BY name, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.After == nil && q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *pgProductRepo) Count(ctx context.Context, q ProductQuery) (int, error) {
	where, args := productFilter(q)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

func (r *pgProductRepo) Insert(ctx context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Version = 1
	query := `INSERT INTO products (id, sku, name, description, price, stock, category_id, brand, version, active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.SKU, p.Name, p.Description, p.Price, p.Stock, nullID(p.CategoryID), p.Brand, p.Version, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", classify(err))
	}
	r.rec.Record(notify.Change{Topic: notify.TopicCatalog, ProductIDs: []uuid.UUID{p.ID}})
	return nil
}

func (r *pgProductRepo) Save(ctx context.Context, p *model.Product) error {
	query := `UPDATE products
			  SET sku = $3, name = $4, description = $5, price = $6, stock = $7, active = $8,
			      category_id = $9, brand = $10, version = version + 1, updated_at = NOW()
			  WHERE id = $1 AND version = $2
			  RETURNING version, updated_at`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.Version, p.SKU, p.Name, p.Description, p.Price, p.Stock, p.Active,
		nullID(p.CategoryID), p.Brand,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save product %s: %w", p.ID, ErrVersionConflict)
		}
		return fmt.Errorf("save product: %w", classify(err))
	}
	r.rec.Record(notify.Change{Topic: notify.TopicCatalog, ProductIDs: []uuid.UUID{p.ID}})
	return nil
}

func productFilter(q ProductQuery) (string, []any) {
	where := "TRUE"
	var args []any
	if !q.IncludeUnavailable {
		where += " AND active AND stock > 0"
	}
	if q.Search != "" {
		args = append(args, escapeLike(q.Search))
		n := len(args)
		where += fmt.Sprintf(
			" AND (name ILIKE '%%' || $%d || '%%' OR sku ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')",
			n, n, n,
		)
	}
	if q.CategoryID != uuid.Nil {
		args = append(args, q.CategoryID)
		where += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if q.Brand != "" {
		args = append(args, q.Brand)
		where += fmt.Sprintf(" AND lower(brand) = lower($%d)", len(args))
	}
	if q.MinPrice.Valid {
		args = append(args, q.MinPrice.Decimal)
		where += fmt.Sprintf(" AND price >= $%d", len(args))
	}
	if q.MaxPrice.Valid {
		args = append(args, q.MaxPrice.Decimal)
		where += fmt.Sprintf(" AND price <= $%d", len(args))
	}
	return where, args
}

// nullID stores uuid.Nil as NULL.
func nullID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// scanProduct reads productColumns followed by any extra columns.
func scanProduct(row scanner, extra ...any) (*model.Product, error) {
	p := &model.Product{}
	var category *uuid.UUID
	dest := append([]any{
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Stock, &category, &p.Brand,
		&p.Version, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if category != nil {
		p.CategoryID = *category
	}
	return p, nil
}

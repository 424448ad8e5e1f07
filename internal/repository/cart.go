package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

type pgCartRepo struct {
	db  DBTX
	rec notify.Recorder
}

func (r *pgCartRepo) Items(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, product_id, quantity, added_at, updated_at
		 FROM cart_items WHERE user_id = $1
		 ORDER BY added_at, product_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	return items, nil
}

func (r *pgCartRepo) Lines(ctx context.Context, userID uuid.UUID) ([]model.CartLine, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+joinedProductColumns+`, c.quantity
		 FROM cart_items c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1
		 ORDER BY c.added_at, c.product_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart lines: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		var l model.CartLine
		p, err := scanProduct(rows, &l.Quantity)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		l.Product = *p
		l.LineTotal = p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cart lines: %w", err)
	}
	return lines, nil
}

// Upsert sets the quantity of a cart line, creating it if needed. The
// original added_at of an existing line is kept.
func (r *pgCartRepo) Upsert(ctx context.Context, item *model.CartItem) error {
	query := `INSERT INTO cart_items (user_id, product_id, quantity, added_at, updated_at)
			  VALUES ($1, $2, $3, clock_timestamp(), clock_timestamp())
			  ON CONFLICT (user_id, product_id)
			  DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = clock_timestamp()
			  RETURNING added_at, updated_at`
	err := r.db.QueryRow(ctx, query, item.UserID, item.ProductID, item.Quantity).
		Scan(&item.AddedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", classify(err))
	}
	r.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: item.UserID})
	return nil
}

func (r *pgCartRepo) Delete(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	r.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: userID})
	return true, nil
}

func (r *pgCartRepo) DeleteMany(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (int, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	ct, err := r.db.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("delete cart items: %w", err)
	}
	n := int(ct.RowsAffected())
	if n > 0 {
		r.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: userID})
	}
	return n, nil
}

func (r *pgCartRepo) Clear(ctx context.Context, userID uuid.UUID) (int, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	n := int(ct.RowsAffected())
	if n > 0 {
		r.rec.Record(notify.Change{Topic: notify.TopicCart, UserID: userID})
	}
	return n, nil
}

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

const orderColumns = `id, number, user_id, status, total_amount, shipping_address, shipping_phone, note, created_at, updated_at`

type pgOrderRepo struct {
	db  DBTX
	rec notify.Recorder
}

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO orders (id, number, user_id, status, total_amount, shipping_address, shipping_phone, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.Number, order.UserID, string(order.Status), order.TotalAmount,
		order.Shipping.Address, order.Shipping.Phone, order.Shipping.Note,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", classify(err))
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.ID = uuid.New()
		line.OrderID = order.ID
		_, err = r.db.Exec(ctx,
			`INSERT INTO order_lines (id, order_id, line_no, product_id, product_name, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			line.ID, line.OrderID, i, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", classify(err))
		}
	}
	r.rec.Record(notify.Change{Topic: notify.TopicOrders, UserID: order.UserID})
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *pgOrderRepo) Lock(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgOrderRepo) get(ctx context.Context, query string, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", classify(err))
	}
	lines, err := r.lines(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

func (r *pgOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []model.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	lines, err := r.lines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *pgOrderRepo) lines(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]model.OrderLine, error) {
	out := make(map[uuid.UUID][]model.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price
		 FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, line_no`, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	return out, nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	var userID uuid.UUID
	err := r.db.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING user_id`, id, string(status),
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update order status: %w", ErrNotFound)
		}
		return fmt.Errorf("update order status: %w", classify(err))
	}
	r.rec.Record(notify.Change{Topic: notify.TopicOrders, UserID: userID})
	return nil
}

func (r *pgOrderRepo) Stats(ctx context.Context, userID uuid.UUID) (*model.OrderStats, error) {
	stats := &model.OrderStats{}
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'placed'),
		        COUNT(*) FILTER (WHERE status = 'cancelled'),
		        COALESCE(SUM(total_amount) FILTER (WHERE status = 'placed'), 0)
		 FROM orders WHERE user_id = $1`, userID,
	).Scan(&stats.Count, &stats.Placed, &stats.Cancelled, &stats.TotalSpent)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	return stats, nil
}

func scanOrder(row scanner) (*model.Order, error) {
	o := &model.Order{}
	var status string
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &status, &o.TotalAmount,
		&o.Shipping.Address, &o.Shipping.Phone, &o.Shipping.Note,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

type pgReviewRepo struct {
	db  DBTX
	rec notify.Recorder
}

func (r *pgReviewRepo) Upsert(ctx context.Context, rv *model.Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	query := `INSERT INTO reviews (id, user_id, product_id, rating, comment, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, clock_timestamp(), clock_timestamp())
			  ON CONFLICT (user_id, product_id)
			  DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = clock_timestamp()
			  RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query, rv.ID, rv.UserID, rv.ProductID, rv.Rating, rv.Comment).
		Scan(&rv.ID, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert review: %w", classify(err))
	}
	r.rec.Record(notify.Change{Topic: notify.TopicReviews, ProductIDs: []uuid.UUID{rv.ProductID}})
	return nil
}

func (r *pgReviewRepo) Delete(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx,
		`DELETE FROM reviews WHERE user_id = $1 AND product_id = $2`, userID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	r.rec.Record(notify.Change{Topic: notify.TopicReviews, ProductIDs: []uuid.UUID{productID}})
	return true, nil
}

func (r *pgReviewRepo) ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]model.Review, error) {
	query := `SELECT r.id, r.user_id, r.product_id, u.username, r.rating, r.comment, r.created_at, r.updated_at
			  FROM reviews r
			  JOIN users u ON u.id = r.user_id
			  WHERE r.product_id = $1
			  ORDER BY r.created_at DESC, r.id`
	args := []any{productID}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $2`
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var rv model.Review
		err := rows.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &rv.Username,
			&rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

func (r *pgReviewRepo) Rating(ctx context.Context, productID uuid.UUID) (*model.Rating, error) {
	rating := &model.Rating{ProductID: productID}
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews WHERE product_id = $1`, productID,
	).Scan(&rating.Count, &rating.Average)
	if err != nil {
		return nil, fmt.Errorf("product rating: %w", err)
	}
	return rating, nil
}

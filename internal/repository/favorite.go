package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
)

type pgFavoriteRepo struct {
	db  DBTX
	rec notify.Recorder
}

func (r *pgFavoriteRepo) Add(ctx context.Context, fav *model.Favorite) (bool, error) {
	rows, err := r.db.Query(ctx,
		`INSERT INTO favorites (user_id, product_id, added_at)
		 VALUES ($1, $2, clock_timestamp())
		 ON CONFLICT (user_id, product_id) DO NOTHING
		 RETURNING added_at`,
		fav.UserID, fav.ProductID,
	)
	if err != nil {
		return false, fmt.Errorf("add favorite: %w", classify(err))
	}
	defer rows.Close()

	inserted := rows.Next()
	if inserted {
		if err := rows.Scan(&fav.AddedAt); err != nil {
			return false, fmt.Errorf("scan favorite: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("add favorite: %w", classify(err))
	}
	if inserted {
		r.rec.Record(notify.Change{Topic: notify.TopicFavorites, UserID: fav.UserID})
	}
	return inserted, nil
}

func (r *pgFavoriteRepo) Remove(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	r.rec.Record(notify.Change{Topic: notify.TopicFavorites, UserID: userID})
	return true, nil
}

func (r *pgFavoriteRepo) Products(ctx context.Context, userID uuid.UUID) ([]model.Product, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+joinedProductColumns+`
		 FROM favorites f
		 JOIN products p ON p.id = f.product_id
		 WHERE f.user_id = $1
		 ORDER BY f.added_at DESC, f.product_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return out, nil
}

func (r *pgFavoriteRepo) Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND product_id = $2)`, userID, productID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return ok, nil
}

func (r *pgFavoriteRepo) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM favorites WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return n, nil
}

func (r *pgFavoriteRepo) Clear(ctx context.Context, userID uuid.UUID) (int, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear favorites: %w", err)
	}
	n := int(ct.RowsAffected())
	if n > 0 {
		r.rec.Record(notify.Change{Topic: notify.TopicFavorites, UserID: userID})
	}
	return n, nil
}

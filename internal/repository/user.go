package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-core/internal/model"
)

// Email is NULL rather than empty in the table so that users without one
// do not collide on the unique index.
const userColumns = `id, username, password_hash, COALESCE(email, ''), full_name, phone, address, created_at, updated_at`

type pgUserRepo struct{ db DBTX }

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `INSERT INTO users (id, username, password_hash, email, full_name, phone, address, created_at, updated_at)
			  VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.Email, user.FullName, user.Phone, user.Address,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", classify(err))
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) Lock(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", classify(err))
	}
	return user, nil
}

func (r *pgUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", ErrNotFound)
	}
	return nil
}

func (r *pgUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `UPDATE users
			  SET email = NULLIF($2, ''), full_name = $3, phone = $4, address = $5, updated_at = NOW()
			  WHERE id = $1
			  RETURNING updated_at`
	err := r.db.QueryRow(ctx, query, user.ID, user.Email, user.FullName, user.Phone, user.Address).
		Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update profile: %w", ErrNotFound)
		}
		return fmt.Errorf("update profile: %w", classify(err))
	}
	return nil
}

func scanUser(row scanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash,
		&user.Email, &user.FullName, &user.Phone, &user.Address,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

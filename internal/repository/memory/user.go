package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type userRepo struct{ s *store }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if _, ok := st.usernames[user.Username]; ok {
		return fmt.Errorf("create user: %w", repository.ErrUniqueViolation)
	}
	if _, ok := st.emails[user.Email]; ok && user.Email != "" {
		return fmt.Errorf("create user: %w", repository.ErrUniqueViolation)
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	st.users[user.ID] = *user
	st.usernames[user.Username] = user.ID
	if user.Email != "" {
		st.emails[user.Email] = user.ID
	}
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.state().users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	id, ok := st.usernames[username]
	if !ok {
		return nil, nil
	}
	u := st.users[id]
	return &u, nil
}

func (r userRepo) Lock(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r userRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	u, ok := st.users[id]
	if !ok {
		return fmt.Errorf("update password: %w", repository.ErrNotFound)
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.s.now()
	st.users[id] = u
	return nil
}

func (r userRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	u, ok := st.users[user.ID]
	if !ok {
		return fmt.Errorf("update profile: %w", repository.ErrNotFound)
	}
	if owner, taken := st.emails[user.Email]; taken && owner != user.ID {
		return fmt.Errorf("update profile: %w", repository.ErrUniqueViolation)
	}
	if u.Email != "" {
		delete(st.emails, u.Email)
	}
	if user.Email != "" {
		st.emails[user.Email] = user.ID
	}
	u.Profile = user.Profile
	u.UpdatedAt = r.s.now()
	st.users[user.ID] = u
	user.UpdatedAt = u.UpdatedAt
	return nil
}

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/go-ecommerce-core/internal/model"
)

func TestAuthService_RegisterThenAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ username, password string }{
		{"alice", "password123"},
		{"bob.smith", "correct horse battery staple"},
		{"c_3-po", "ÄÖÜ-ßecret!"},
	} {
		id, err := f.auth.Register(ctx, tc.username, tc.password)
		require.NoError(t, err, tc.username)

		got, err := f.auth.Authenticate(ctx, tc.username, tc.password)
		require.NoError(t, err, tc.username)
		assert.Equal(t, id, got)

		_, err = f.auth.Authenticate(ctx, tc.username, tc.password+"x")
		assert.ErrorIs(t, err, ErrInvalidCredentials, tc.username)
	}
}

func TestAuthService_Register_StoresSaltedHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.user(t, "alice")
	b := f.user(t, "bob")

	ua, err := f.gw.Users().GetByID(ctx, a)
	require.NoError(t, err)
	ub, err := f.gw.Users().GetByID(ctx, b)
	require.NoError(t, err)

	assert.NotContains(t, ua.PasswordHash, "password123")
	assert.NotEqual(t, ua.PasswordHash, ub.PasswordHash)
	cost, err := bcrypt.Cost([]byte(ua.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.user(t, "alice")
	_, err := f.auth.Register(ctx, "Alice", "another-password")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	u, err := f.gw.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	_, err = f.auth.Authenticate(ctx, "alice", "password123")
	assert.NoError(t, err)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "al", "password123"},
		{"bad characters", "al ice", "password123"},
		{"short password", "alice", "short"},
		{"long password", "alice", strings.Repeat("x", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAuthService_Authenticate_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Authenticate(context.Background(), "nobody", "password123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	err := f.auth.ChangePassword(ctx, id, "wrong-password", "new-password-1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.auth.ChangePassword(ctx, id, "password123", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, f.auth.ChangePassword(ctx, id, "password123", "new-password-1"))
	_, err = f.auth.Authenticate(ctx, "alice", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.auth.Authenticate(ctx, "alice", "new-password-1")
	assert.NoError(t, err)

	assert.ErrorIs(t, f.auth.ChangePassword(ctx, uuid.New(), "a", "new-password-1"), ErrNotFound)
}

func TestAuthService_LoginAndResolveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	session, err := f.auth.Login(ctx, "ALICE", "password123")
	require.NoError(t, err)
	assert.Equal(t, id, session.UserID)
	assert.Equal(t, "alice", session.Username)
	assert.NotEmpty(t, session.Token)

	got, err := f.auth.ResolveSession(session.Token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = f.auth.ResolveSession(session.Token + "x")
	assert.ErrorIs(t, err, ErrInvalidSession)

	other := NewAuthService(f.gw, NewBcryptHasher(bcrypt.MinCost), SessionConfig{Secret: "other", TTL: time.Hour})
	_, err = other.ResolveSession(session.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = f.auth.Login(ctx, "alice", "nope-nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_ResolveSession_Expired(t *testing.T) {
	f := newFixture(t)
	expired := NewAuthService(f.gw, NewBcryptHasher(bcrypt.MinCost), SessionConfig{Secret: "test-secret", TTL: -time.Minute})
	f.user(t, "alice")

	session, err := expired.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)
	_, err = f.auth.ResolveSession(session.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthService_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	got, err := f.auth.UpdateProfile(ctx, alice, model.Profile{
		Email:    " Alice@Example.COM ",
		FullName: "Alice Liddell",
		Phone:    "+44 20 7946 0000",
		Address:  "1 Rabbit Hole",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "alice", got.Username)

	stored, err := f.auth.Profile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, got.Profile, stored.Profile)

	_, err = f.auth.UpdateProfile(ctx, bob, model.Profile{Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = f.auth.UpdateProfile(ctx, bob, model.Profile{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	cleared, err := f.auth.UpdateProfile(ctx, alice, model.Profile{FullName: "Alice"})
	require.NoError(t, err)
	assert.Empty(t, cleared.Email)
	_, err = f.auth.UpdateProfile(ctx, bob, model.Profile{Email: "alice@example.com"})
	assert.NoError(t, err, "cleared email is free again")

	_, err = f.auth.UpdateProfile(ctx, uuid.New(), model.Profile{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.auth.Profile(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

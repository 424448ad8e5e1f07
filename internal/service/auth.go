package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// AuthService is the credential store: registration, password checks and
// signed session tokens.
type AuthService struct {
	gw         repository.Gateway
	hasher     PasswordHasher
	secret     []byte
	sessionTTL time.Duration
}

func NewAuthService(gw repository.Gateway, hasher PasswordHasher, cfg SessionConfig) *AuthService {
	return &AuthService{gw: gw, hasher: hasher, secret: []byte(cfg.Secret), sessionTTL: cfg.TTL}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	username = normalizeUsername(username)
	if err := check(credentials{Username: username, Password: password}); err != nil {
		return uuid.Nil, err
	}

	existing, err := s.gw.Users().GetByUsername(ctx, username)
	if err != nil {
		return uuid.Nil, classify("check user", err)
	}
	if existing != nil {
		return uuid.Nil, ErrDuplicateUsername
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, classify("register", err)
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.gw.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return uuid.Nil, ErrDuplicateUsername
		}
		return uuid.Nil, classify("create user", err)
	}
	return user.ID, nil
}

func (s *AuthService) Authenticate(ctx context.Context, username, password string) (uuid.UUID, error) {
	user, err := s.gw.Users().GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return uuid.Nil, classify("get user", err)
	}
	if user == nil {
		return uuid.Nil, ErrNotFound
	}
	if !s.hasher.Check(password, user.PasswordHash) {
		return uuid.Nil, ErrInvalidCredentials
	}
	return user.ID, nil
}

// ChangePassword re-verifies the current password before storing a hash of
// the new one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.gw.Users().GetByID(ctx, userID)
	if err != nil {
		return classify("get user", err)
	}
	if user == nil {
		return ErrNotFound
	}
	if !s.hasher.Check(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := check(credentials{Username: user.Username, Password: newPassword}); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return classify("change password", err)
	}
	if err := s.gw.Users().UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return classify("update password", err)
	}
	return nil
}

func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.gw.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, classify("get user", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// UpdateProfile replaces the user's contact details. Emails compare
// case-insensitively and an empty email clears it.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, profile model.Profile) (*model.User, error) {
	profile = normalizeProfile(profile)
	if err := check(profile); err != nil {
		return nil, err
	}

	var out *model.User
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		user, err := st.Users().Lock(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}
		user.Profile = profile
		if err := st.Users().UpdateProfile(ctx, user); err != nil {
			return err
		}
		out = user
		return nil
	})
	if errors.Is(err, repository.ErrUniqueViolation) {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, classify("update profile", err)
	}
	return out, nil
}

func normalizeProfile(p model.Profile) model.Profile {
	return model.Profile{
		Email:    strings.ToLower(strings.TrimSpace(p.Email)),
		FullName: strings.TrimSpace(p.FullName),
		Phone:    strings.TrimSpace(p.Phone),
		Address:  strings.TrimSpace(p.Address),
	}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	userID, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(s.sessionTTL)
	token, err := s.generateToken(userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &model.Session{
		Token:     token,
		UserID:    userID,
		Username:  normalizeUsername(username),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveSession returns the user a session token was issued to.
func (s *AuthService) ResolveSession(token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidSession
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}
	return userID, nil
}

func (s *AuthService) generateToken(userID uuid.UUID, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

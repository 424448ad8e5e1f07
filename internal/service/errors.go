package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/repository"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrDuplicateEmail     = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrStockConflict      = errors.New("stock conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrStorageFault       = errors.New("storage fault")

	// ErrConflict reports a stale expected version on a catalog write.
	ErrConflict       = errors.New("version conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidSession = errors.New("invalid session")
)

// StockConflictError names the products whose stock could not cover an
// order at checkout.
type StockConflictError struct {
	Products []uuid.UUID
}

func (e *StockConflictError) Error() string {
	ids := make([]string, len(e.Products))
	for i, id := range e.Products {
		ids[i] = id.String()
	}
	return fmt.Sprintf("stock conflict on products [%s]", strings.Join(ids, ", "))
}

func (e *StockConflictError) Is(target error) bool { return target == ErrStockConflict }

type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

var domainErrors = []error{
	ErrNotFound, ErrDuplicateUsername, ErrDuplicateEmail, ErrInvalidCredentials, ErrInsufficientStock,
	ErrEmptyCart, ErrStockConflict, ErrForbidden, ErrInvalidState, ErrStorageFault,
	ErrConflict, ErrInvalidInput, ErrInvalidSession,
}

// IsDomain reports whether err is an expected outcome rather than a fault.
func IsDomain(err error) bool {
	if errors.Is(err, ErrStorageFault) {
		return false
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify passes domain errors through and marks everything else as a
// storage fault.
func classify(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFault, err)
}

// retryable reports whether a checkout failure may succeed against fresh
// data.
func retryable(err error) bool {
	return errors.Is(err, ErrStockConflict) || errors.Is(err, repository.ErrTxConflict)
}

// Package repository is the persistence gateway. Every read and write goes
// through a Store, and every multi-row mutation runs inside Gateway.InTx.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
)

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("row not found")
	// ErrUniqueViolation is returned when a write collides with a unique
	// constraint.
	ErrUniqueViolation = errors.New("unique violation")
	// ErrVersionConflict is returned by ProductRepository.Save when the
	// stored version differs from the product's Version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrTxConflict is returned when the database aborts a transaction to
	// resolve a concurrency conflict (serialization failure, deadlock).
	ErrTxConflict = errors.New("transaction conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Lock reads a user and holds a row lock until the transaction ends.
	// Writers of that user's cart serialize on it.
	Lock(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	// UpdateProfile writes user.Profile and refreshes user.UpdatedAt.
	UpdateProfile(ctx context.Context, user *model.User) error
}

type CategoryRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Category, error)
	List(ctx context.Context) ([]model.Category, error)
	Create(ctx context.Context, category *model.Category) error
	// Ensure fills category from the stored row with the same name,
	// inserting it first if there is none.
	Ensure(ctx context.Context, category *model.Category) error
}

// ProductCursor is the keyset position after which List continues.
type ProductCursor struct {
	Name string
	ID   uuid.UUID
}

// ProductQuery selects products ordered by (name, id). After takes
// precedence over Offset. Zero filter fields match everything; Brand
// matches case-insensitively and the price bounds are inclusive.
type ProductQuery struct {
	Search             string
	IncludeUnavailable bool
	CategoryID         uuid.UUID
	Brand              string
	MinPrice           decimal.NullDecimal
	MaxPrice           decimal.NullDecimal
	After              *ProductCursor
	Offset             int
	Limit              int
}

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error)
	// Lock reads a product and holds a row lock until the transaction ends.
	Lock(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// LockMany locks the given products in ascending id order.
	LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error)
	LockBySKU(ctx context.Context, sku string) (*model.Product, error)
	List(ctx context.Context, q ProductQuery) ([]model.Product, error)
	Count(ctx context.Context, q ProductQuery) (int, error)
	Insert(ctx context.Context, product *model.Product) error
	// Save writes every mutable field if the stored version still equals
	// product.Version, then increments product.Version.
	Save(ctx context.Context, product *model.Product) error
}

type CartRepository interface {
	Items(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error)
	// Lines joins the user's cart with the current product rows, in the
	// order items were first added.
	Lines(ctx context.Context, userID uuid.UUID) ([]model.CartLine, error)
	Upsert(ctx context.Context, item *model.CartItem) error
	Delete(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	// DeleteMany removes the listed products from the user's cart and
	// reports how many lines went away.
	DeleteMany(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (int, error)
	Clear(ctx context.Context, userID uuid.UUID) (int, error)
}

type FavoriteRepository interface {
	// Add reports false when the product was already a favorite.
	Add(ctx context.Context, fav *model.Favorite) (bool, error)
	Remove(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	// Products lists the user's favorites, most recently added first.
	Products(ctx context.Context, userID uuid.UUID) ([]model.Product, error)
	Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	Clear(ctx context.Context, userID uuid.UUID) (int, error)
}

type ReviewRepository interface {
	// Upsert inserts the review or replaces the rating and comment of the
	// user's existing review of the product, keeping its ID and CreatedAt.
	Upsert(ctx context.Context, review *model.Review) error
	Delete(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	// ListByProduct returns reviews newest first, with Username filled in.
	ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]model.Review, error)
	Rating(ctx context.Context, productID uuid.UUID) (*model.Rating, error)
}

type OrderFilter struct {
	Status model.OrderStatus
	Limit  int
}

type OrderRepository interface {
	// Create inserts the order and its lines.
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	Lock(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
	Stats(ctx context.Context, userID uuid.UUID) (*model.OrderStats, error)
}

type Store interface {
	Users() UserRepository
	Categories() CategoryRepository
	Products() ProductRepository
	Carts() CartRepository
	Favorites() FavoriteRepository
	Reviews() ReviewRepository
	Orders() OrderRepository
}

// Gateway is the single transactional boundary over the store. Methods of
// the embedded Store run in autocommit mode.
type Gateway interface {
	Store
	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise. Change notifications recorded by fn are
	// published only after a successful commit. Cancelling ctx does not
	// abort a transaction that has started.
	InTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}

package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds the contact details a user can edit. Email is unique among
// users that set one.
type Profile struct {
	Email    string `validate:"omitempty,email,max=254"`
	FullName string `validate:"max=200"`
	Phone    string `validate:"max=32"`
	Address  string `validate:"max=500"`
}

type Session struct {
	Token     string
	UserID    uuid.UUID
	Username  string
	ExpiresAt time.Time
}

// Product is a catalog entry. Version is incremented on every write and is
// the stamp callers pass back for optimistic concurrency checks.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  uuid.UUID       `json:"category_id"`
	Brand       string          `json:"brand"`
	Version     int64           `json:"version"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Available reports whether the product can currently be bought.
func (p *Product) Available() bool {
	return p.Active && p.Stock > 0
}

// ProductInput is one record of a catalog bulk upsert, keyed by SKU. A
// zero ExpectedVersion only inserts; updating an existing product requires
// its current version. Category names a category, created on first use.
type ProductInput struct {
	SKU             string          `validate:"required,max=64"`
	Name            string          `validate:"required,max=200"`
	Description     string          `validate:"max=4000"`
	Price           decimal.Decimal `validate:"gte=0"`
	Stock           int             `validate:"gte=0"`
	Category        string          `validate:"max=100"`
	Brand           string          `validate:"max=100"`
	Active          bool
	ExpectedVersion int64 `validate:"gte=0"`
}

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Favorite struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	AddedAt   time.Time
}

// Review is a user's rating of a product. A user has at most one review per
// product; writing again replaces it.
type Review struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Username  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rating aggregates the reviews of one product. Average is zero when Count
// is zero.
type Rating struct {
	ProductID uuid.UUID
	Count     int
	Average   decimal.Decimal
}

type CartItem struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	AddedAt   time.Time
	UpdatedAt time.Time
}

// CartLine joins a cart item with the current catalog snapshot of its
// product.
type CartLine struct {
	Product   Product
	Quantity  int
	LineTotal decimal.Decimal
}

type CartView struct {
	UserID        uuid.UUID
	Lines         []CartLine
	TotalQuantity int
	Total         decimal.Decimal
}

type CartSummary struct {
	Items         int
	TotalQuantity int
	Total         decimal.Decimal
}

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Shipping struct {
	Address string `validate:"max=500"`
	Phone   string `validate:"max=32"`
	Note    string `validate:"max=1000"`
}

type Order struct {
	ID          uuid.UUID
	Number      string
	UserID      uuid.UUID
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Shipping    Shipping
	Lines       []OrderLine
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductIDs lists the distinct products on the order.
func (o *Order) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Lines))
	for _, l := range o.Lines {
		if !slices.Contains(ids, l.ProductID) {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// OrderLine records what was bought at the price captured when the order
// was placed. It is never updated.
type OrderLine struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type OrderStats struct {
	Count      int
	Placed     int
	Cancelled  int
	TotalSpent decimal.Decimal
}

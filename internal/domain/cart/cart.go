package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rejection errors for cart mutations. Every rejection leaves the cart
// exactly as it was.
var (
	// ErrPriceNotSet is returned when a product has a non-positive selling price.
	ErrPriceNotSet = errors.New("price not set")
	// ErrOutOfStock is returned when a product has no stock at add time.
	ErrOutOfStock = errors.New("out of stock")
	// ErrLineNotFound is returned when a quantity change targets a product
	// that is not in the cart.
	ErrLineNotFound = errors.New("product not in cart")
)

// InsufficientStockError indicates a quantity change would exceed the stock
// snapshot recorded when the product was added.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d left in stock", e.Available)
}

// Line is a single cart position. Quantity never exceeds Stock (the stock
// snapshot taken at add time). The line total is always derived, never
// stored, so it cannot drift from quantity and price.
type Line struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Code         string          `json:"code,omitempty"`
	UnitPriceUSD decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	Quantity     int             `json:"quantity"`
	Image        string          `json:"image,omitempty"`
	CostUSD      decimal.Decimal `json:"cost,omitempty"`
	CurrencyType string          `json:"currency_type,omitempty"`
}

// Total returns quantity × unit price.
func (l Line) Total() decimal.Decimal {
	return l.UnitPriceUSD.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SnapshotStore persists one cart snapshot per session. Last writer wins;
// there is no versioning.
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) ([]Line, error)
	Save(ctx context.Context, sessionID string, lines []Line) error
	Clear(ctx context.Context, sessionID string) error
}

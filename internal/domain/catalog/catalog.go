package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrKeywordTooShort is returned when a search keyword is between 1 and 3
// characters. Callers treat it as "neither search nor clear": the previous
// result set stays on screen.
var ErrKeywordTooShort = errors.New("keyword too short")

// Item is a catalog product as reported by the ERP backend. It is read-only
// from the cart's perspective: price and stock are a snapshot valid for the
// lifetime of one search result.
type Item struct {
	ID           string
	Name         string
	Code         string
	PriceUSD     decimal.Decimal
	Stock        int
	Image        string
	CostUSD      decimal.Decimal
	CurrencyType string
}

// Searcher is the backend capability the catalog service needs.
type Searcher interface {
	SearchProducts(ctx context.Context, keyword string) ([]Item, error)
}

// Package currency owns the USD↔local-currency exchange rate and every
// conversion in the service. The rate is a single process-wide value: it is
// refreshed opportunistically from the backend, so a stale rate between
// refreshes is an accepted eventual-consistency window, not a bug.
package currency

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// persistTimeout bounds each fire-and-forget rate save.
const persistTimeout = 3 * time.Second

// RateStore persists the current rate across restarts. Single slot, last
// writer wins.
type RateStore interface {
	Load(ctx context.Context) (decimal.Decimal, error)
	Save(ctx context.Context, rate decimal.Decimal) error
}

// RateSource reports the current rate from the backend.
type RateSource interface {
	CurrentRate(ctx context.Context) (float64, error)
}

// Converter converts between USD (catalog pricing unit) and the local
// currency (display/payment unit). It is constructed once at the application
// root and passed to everything that needs conversions.
type Converter struct {
	store RateStore
	lg    *zap.Logger

	mu   sync.RWMutex
	rate decimal.Decimal
}

// New creates a Converter initialized from the persisted rate. An absent or
// unreadable stored rate falls back to fallbackRate.
func New(ctx context.Context, store RateStore, fallbackRate float64, lg *zap.Logger) *Converter {
	c := &Converter{
		store: store,
		lg:    lg,
		rate:  decimal.NewFromFloat(fallbackRate),
	}

	stored, err := store.Load(ctx)
	switch {
	case err != nil:
		lg.Warn("Stored exchange rate unreadable, using fallback",
			zap.Float64("fallback", fallbackRate), zap.Error(err))
	case stored.IsPositive():
		c.rate = stored
	}
	return c
}

// Rate returns the current USD→local rate.
func (c *Converter) Rate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate.InexactFloat64()
}

// SetRate overwrites the rate and persists it for reload survival. It is a
// no-op for non-positive or non-finite rates.
func (c *Converter) SetRate(rate float64) {
	if !isFinite(rate) || rate <= 0 {
		return
	}
	d := decimal.NewFromFloat(rate)

	c.mu.Lock()
	c.rate = d
	c.mu.Unlock()

	store, lg := c.store, c.lg
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := store.Save(ctx, d); err != nil {
			lg.Warn("Persist exchange rate failed", zap.Error(err))
		}
	}()
}

// Refresh pulls the current rate from the backend and adopts it. A missing or
// non-positive backend rate retains the previous value. Concurrent refreshes
// are last-writer-wins.
func (c *Converter) Refresh(ctx context.Context, source RateSource) error {
	rate, err := source.CurrentRate(ctx)
	if err != nil {
		return err
	}
	c.SetRate(rate)
	return nil
}

// ToLocal converts a USD amount to whole units of local currency,
// round(usd × rate). Invalid or non-positive input yields 0.
func (c *Converter) ToLocal(usd float64) int64 {
	if !isFinite(usd) || usd <= 0 {
		return 0
	}
	c.mu.RLock()
	rate := c.rate
	c.mu.RUnlock()

	return decimal.NewFromFloat(usd).Mul(rate).Round(0).IntPart()
}

// ToUSD converts a local-currency amount to USD with 2-decimal precision.
// Invalid or non-positive input yields 0.
func (c *Converter) ToUSD(local float64) float64 {
	if !isFinite(local) || local <= 0 {
		return 0
	}
	c.mu.RLock()
	rate := c.rate
	c.mu.RUnlock()

	return decimal.NewFromFloat(local).Div(rate).Round(2).InexactFloat64()
}

// FormatUSD renders a $-prefixed amount with exactly 2 decimals. Invalid
// input renders as $0.00.
func (c *Converter) FormatUSD(amount float64) string {
	if !isFinite(amount) {
		return "$0.00"
	}
	return "$" + decimal.NewFromFloat(amount).StringFixed(2)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

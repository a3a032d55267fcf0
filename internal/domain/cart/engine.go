package cart

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uzpos/kassa/internal/domain/catalog"
)

// snapshotTimeout bounds each write-through save so a slow store cannot
// accumulate goroutines forever.
const snapshotTimeout = 3 * time.Second

// Engine is the authoritative in-memory cart for one session. Lines are
// ordered and unique by product id; repeated adds increment the existing
// line. Every successful mutation is written through to the snapshot store
// without blocking the caller.
type Engine struct {
	sessionID string
	store     SnapshotStore
	lg        *zap.Logger

	mu    sync.Mutex
	lines []Line
}

// NewEngine creates an empty cart engine for the given session.
func NewEngine(sessionID string, store SnapshotStore, lg *zap.Logger) *Engine {
	return &Engine{
		sessionID: sessionID,
		store:     store,
		lg:        lg.With(zap.String("session_id", sessionID)),
	}
}

// Restore creates an engine rehydrated from the persisted snapshot. A missing
// or corrupt snapshot falls back to an empty cart rather than failing.
func Restore(ctx context.Context, sessionID string, store SnapshotStore, lg *zap.Logger) *Engine {
	e := NewEngine(sessionID, store, lg)

	lines, err := store.Load(ctx, sessionID)
	if err != nil {
		e.lg.Warn("Cart snapshot unreadable, starting empty", zap.Error(err))
		return e
	}
	e.lines = lines
	return e
}

// AddItem appends the product with quantity 1, or increments the existing
// line. It rejects products without a price or stock, and increments past the
// stock snapshot.
func (e *Engine) AddItem(item catalog.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !item.PriceUSD.IsPositive() {
		return ErrPriceNotSet
	}
	if item.Stock < 1 {
		return ErrOutOfStock
	}

	if i, ok := e.find(item.ID); ok {
		line := &e.lines[i]
		if line.Quantity+1 > line.Stock {
			return &InsufficientStockError{ProductID: item.ID, Available: line.Stock}
		}
		line.Quantity++
		e.persist()
		return nil
	}

	e.lines = append(e.lines, Line{
		ProductID:    item.ID,
		Name:         item.Name,
		Code:         item.Code,
		UnitPriceUSD: item.PriceUSD,
		Stock:        item.Stock,
		Quantity:     1,
		Image:        item.Image,
		CostUSD:      item.CostUSD,
		CurrencyType: item.CurrencyType,
	})
	e.persist()
	return nil
}

// SetQuantity changes a line's quantity. A non-positive quantity removes the
// line; a quantity above the stock snapshot is rejected and the line is left
// unchanged.
func (e *Engine) SetQuantity(productID string, quantity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity <= 0 {
		e.remove(productID)
		return nil
	}

	i, ok := e.find(productID)
	if !ok {
		return ErrLineNotFound
	}
	line := &e.lines[i]
	if quantity > line.Stock {
		return &InsufficientStockError{ProductID: productID, Available: line.Stock}
	}
	line.Quantity = quantity
	e.persist()
	return nil
}

// RemoveItem deletes the line unconditionally. Removing an absent product is
// a no-op.
func (e *Engine) RemoveItem(productID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(productID)
}

// Clear empties the cart and deletes the persisted snapshot.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	store, sessionID, lg := e.store, e.sessionID, e.lg
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if err := store.Clear(ctx, sessionID); err != nil {
			lg.Warn("Clear cart snapshot failed", zap.Error(err))
		}
	}()
}

// TotalAmount returns the sum of all line totals in USD.
func (e *Engine) TotalAmount() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := decimal.Zero
	for _, l := range e.lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// TotalItemCount returns the sum of all line quantities.
func (e *Engine) TotalItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, l := range e.lines {
		n += l.Quantity
	}
	return n
}

// Lines returns a copy of the cart lines in insertion order.
func (e *Engine) Lines() []Line {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// find returns the index of the line for productID. Caller holds e.mu.
func (e *Engine) find(productID string) (int, bool) {
	for i := range e.lines {
		if e.lines[i].ProductID == productID {
			return i, true
		}
	}
	return 0, false
}

// remove deletes the line for productID if present and persists the change.
// Caller holds e.mu.
func (e *Engine) remove(productID string) {
	i, ok := e.find(productID)
	if !ok {
		return
	}
	e.lines = append(e.lines[:i], e.lines[i+1:]...)
	e.persist()
}

// persist writes the current snapshot through to the store without blocking
// the mutation. Failures are logged; the in-memory cart stays authoritative.
// Caller holds e.mu.
func (e *Engine) persist() {
	snapshot := make([]Line, len(e.lines))
	copy(snapshot, e.lines)

	store, sessionID, lg := e.store, e.sessionID, e.lg
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if err := store.Save(ctx, sessionID, snapshot); err != nil {
			lg.Warn("Save cart snapshot failed", zap.Error(err))
		}
	}()
}

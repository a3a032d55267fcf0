package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/domain/catalog"
	"github.com/uzpos/kassa/internal/domain/checkout"
	"github.com/uzpos/kassa/internal/currency"
)

// --- Mock implementations ---

type memStore struct {
	mu    sync.Mutex
	lines map[string][]cart.Line
}

func newMemStore() *memStore {
	return &memStore{lines: make(map[string][]cart.Line)}
}

func (m *memStore) Load(_ context.Context, id string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[id], nil
}

func (m *memStore) Save(_ context.Context, id string, lines []cart.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[id] = lines
	return nil
}

func (m *memStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, id)
	return nil
}

type stubSubmitter struct {
	orderID string
	err     error
}

func (s *stubSubmitter) CreateOrder(_ context.Context, _ checkout.OrderRequest) (string, error) {
	return s.orderID, s.err
}

type stubRateStore struct{}

func (stubRateStore) Load(_ context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(12500), nil
}
func (stubRateStore) Save(_ context.Context, _ decimal.Decimal) error { return nil }

// --- Helpers ---

func catalogItem(id, price string, stock int) catalog.Item {
	return catalog.Item{
		ID:       id,
		Name:     "Item " + id,
		PriceUSD: decimal.RequireFromString(price),
		Stock:    stock,
	}
}

func newTestRegistry(t *testing.T, store cart.SnapshotStore) *Registry {
	t.Helper()
	conv := currency.New(context.Background(), stubRateStore{}, 12500, zap.NewNop())
	return NewRegistry(store, &stubSubmitter{orderID: "ord-1"}, conv, time.Minute, zap.NewNop())
}

// --- Tests ---

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t, newMemStore())

	s := r.Create()
	require.NotEmpty(t, s.ID)

	got, err := r.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestGet_InvalidID(t *testing.T) {
	r := newTestRegistry(t, newMemStore())

	_, err := r.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGet_RehydratesEvictedSession(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)

	s := r.Create()
	store.lines[s.ID] = []cart.Line{
		{ProductID: "p1", Name: "Olma", UnitPriceUSD: decimal.NewFromFloat(0.5), Stock: 4, Quantity: 2},
	}

	r.EvictIdle(time.Now().Add(2 * time.Minute))

	got, err := r.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.NotSame(t, s, got)

	lines := got.Cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestEvictIdle_KeepsFreshSessions(t *testing.T) {
	r := newTestRegistry(t, newMemStore())
	r.Create()

	assert.Zero(t, r.EvictIdle(time.Now()))
	assert.Equal(t, 1, r.EvictIdle(time.Now().Add(2*time.Minute)))
}

func TestSession_DraftLifecycle(t *testing.T) {
	r := newTestRegistry(t, newMemStore())
	s := r.Create()

	s.UpdateDraft(func(d *checkout.Draft) {
		d.IsDebt = true
		d.Client = &checkout.Client{ID: "c1", Name: "Akmal"}
		d.DiscountLocal = 5000
	})

	d := s.Draft()
	assert.True(t, d.IsDebt)
	assert.Equal(t, int64(5000), d.DiscountLocal)
}

func TestSession_SubmitResetsDraft(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)
	s := r.Create()

	require.NoError(t, s.Cart.AddItem(catalogItem("p1", "2.00", 5)))
	s.UpdateDraft(func(d *checkout.Draft) { d.Comment = "note" })

	receipt, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", receipt.OrderID)
	assert.Empty(t, s.Cart.Lines())
	assert.Equal(t, checkout.Draft{}, s.Draft())
}

func TestSession_SubmitFailureKeepsDraft(t *testing.T) {
	store := newMemStore()
	conv := currency.New(context.Background(), stubRateStore{}, 12500, zap.NewNop())
	r := NewRegistry(store, &stubSubmitter{err: assert.AnError}, conv, time.Minute, zap.NewNop())
	s := r.Create()

	require.NoError(t, s.Cart.AddItem(catalogItem("p1", "2.00", 5)))
	s.UpdateDraft(func(d *checkout.Draft) { d.Comment = "note" })

	_, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "note", s.Draft().Comment)
	assert.Len(t, s.Cart.Lines(), 1)
}

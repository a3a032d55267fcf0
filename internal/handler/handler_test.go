package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uzpos/kassa/internal/backend"
	"github.com/uzpos/kassa/internal/currency"
	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/domain/catalog"
	"github.com/uzpos/kassa/internal/domain/checkout"
	"github.com/uzpos/kassa/internal/session"
)

type memStore struct {
	mu        sync.Mutex
	snapshots map[string][]cart.Line
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[string][]cart.Line)}
}

func (s *memStore) Load(_ context.Context, id string) ([]cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[id], nil
}

func (s *memStore) Save(_ context.Context, id string, lines []cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = lines
	return nil
}

func (s *memStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}

type stubRateStore struct{}

func (stubRateStore) Load(context.Context) (decimal.Decimal, error) { return decimal.Zero, nil }
func (stubRateStore) Save(context.Context, decimal.Decimal) error  { return nil }

type stubBackend struct {
	mu          sync.Mutex
	items       []catalog.Item
	searchErr   error
	searchCalls int
	rate        float64
	rateErr     error
}

func (b *stubBackend) SearchProducts(_ context.Context, _ string) ([]catalog.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.searchCalls++
	return b.items, b.searchErr
}

func (b *stubBackend) CurrentRate(_ context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate, b.rateErr
}

type env struct {
	handler *Handler
	srv     http.Handler
	backend *stubBackend
	orders  *fakeOrders
	store   *memStore
}

type fakeOrders struct {
	mu      sync.Mutex
	orderID string
	err     error
	calls   int
}

func (f *fakeOrders) CreateOrder(_ context.Context, _ checkout.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.orderID, f.err
}

func newEnv(t *testing.T) *env {
	t.Helper()

	be := &stubBackend{rate: 12500}
	orders := &fakeOrders{orderID: "ord-1"}
	store := newMemStore()
	lg := zap.NewNop()

	conv := currency.New(context.Background(), stubRateStore{}, 12500, lg)
	registry := session.NewRegistry(store, orders, conv, time.Hour, lg)
	cat := catalog.NewService(be)

	h := NewHandler(registry, cat, conv, be)
	return &env{handler: h, srv: h.Routes(), backend: be, orders: orders, store: store}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func (e *env) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func productBody(id string, price float64, stock int) map[string]any {
	return map[string]any{
		"id":    id,
		"name":  "Item " + id,
		"code":  "BAR-" + id,
		"price": price,
		"stock": stock,
	}
}

type cartView struct {
	Lines []struct {
		ProductID  string  `json:"product_id"`
		Quantity   int     `json:"quantity"`
		TotalUSD   float64 `json:"total_usd"`
		TotalLocal int64   `json:"total_local"`
	} `json:"lines"`
	ItemCount  int     `json:"item_count"`
	TotalUSD   float64 `json:"total_usd"`
	TotalLocal int64   `json:"total_local"`
	Rate       float64 `json:"rate"`
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) cartView {
	t.Helper()
	var v cartView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestCreateSession(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodGet, "/sessions/"+id+"/cart", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	v := decodeCart(t, w)
	assert.Empty(t, v.Lines)
	assert.Equal(t, float64(12500), v.Rate)
}

func TestGetCart_UnknownSession(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/sessions/not-a-uuid/cart", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddItem(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 15, 10))
	require.Equal(t, http.StatusOK, w.Code)

	v := decodeCart(t, w)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "p1", v.Lines[0].ProductID)
	assert.Equal(t, 1, v.Lines[0].Quantity)
	assert.InDelta(t, 15.0, v.TotalUSD, 1e-9)
	assert.Equal(t, int64(187500), v.TotalLocal)
}

func TestAddItem_Rejections(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 0, 10))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "price not set")

	w = e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p2", 5, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "out of stock")

	w = e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", map[string]any{"name": "no id"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetQuantity(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 10, 3))

	w := e.do(t, http.MethodPut, "/sessions/"+id+"/cart/items/p1", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeCart(t, w)
	assert.Equal(t, 3, v.Lines[0].Quantity)

	// Beyond the stock snapshot.
	w = e.do(t, http.MethodPut, "/sessions/"+id+"/cart/items/p1", map[string]any{"quantity": 4})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "only 3 left in stock")

	// Zero removes the line.
	w = e.do(t, http.MethodPut, "/sessions/"+id+"/cart/items/p1", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeCart(t, w).Lines)
}

func TestSetQuantity_UnknownLine(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodPut, "/sessions/"+id+"/cart/items/ghost", map[string]any{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "product not in cart")
}

func TestRemoveAndClear(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 10, 5))
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p2", 20, 5))

	w := e.do(t, http.MethodDelete, "/sessions/"+id+"/cart/items/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeCart(t, w).Lines, 1)

	// Removing again is idempotent.
	w = e.do(t, http.MethodDelete, "/sessions/"+id+"/cart/items/p1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodDelete, "/sessions/"+id+"/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeCart(t, w).Lines)
}

func TestSearchProducts(t *testing.T) {
	e := newEnv(t)
	e.backend.items = []catalog.Item{{ID: "p1", Name: "Cola", PriceUSD: decimal.NewFromInt(2), Stock: 7}}

	w := e.do(t, http.MethodGet, "/products/search?keyword=cola+zero", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []struct {
			ID    string  `json:"id"`
			Name  string  `json:"name"`
			Price float64 `json:"price"`
			Stock int     `json:"stock"`
		} `json:"items"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Cola", resp.Items[0].Name)
	assert.Equal(t, 7, resp.Items[0].Stock)
}

func TestSearchProducts_Threshold(t *testing.T) {
	e := newEnv(t)

	// Empty keyword clears: 200 with empty list, no backend call.
	w := e.do(t, http.MethodGet, "/products/search?keyword=", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())

	// Short keyword: no-op.
	w = e.do(t, http.MethodGet, "/products/search?keyword=abc", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	e.backend.mu.Lock()
	calls := e.backend.searchCalls
	e.backend.mu.Unlock()
	assert.Zero(t, calls, "threshold cases must not hit the backend")
}

func TestScanBarcode_PrimedFilterSkipsBackend(t *testing.T) {
	e := newEnv(t)
	e.handler.catalog.PrimeCodes([]string{"KNOWN-1"}, 0.001)

	w := e.do(t, http.MethodGet, "/products/scan?code=NEVER-SEEN", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())

	e.backend.mu.Lock()
	defer e.backend.mu.Unlock()
	assert.Zero(t, e.backend.searchCalls)
}

func TestExchangeRate(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/exchange-rate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rate":12500}`, w.Body.String())

	e.backend.mu.Lock()
	e.backend.rate = 13000
	e.backend.mu.Unlock()

	w = e.do(t, http.MethodPost, "/exchange-rate/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rate":13000}`, w.Body.String())
}

func TestDraftLifecycle(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodPut, "/sessions/"+id+"/draft", map[string]any{
		"is_debt":  true,
		"client":   map[string]any{"id": "c1", "name": "Aziz"},
		"discount": 5000,
		"comment":  "regular",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/sessions/"+id+"/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d struct {
		IsDebt bool `json:"is_debt"`
		Client *struct {
			Name string `json:"name"`
		} `json:"client"`
		Discount int64  `json:"discount"`
		Comment  string `json:"comment"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.True(t, d.IsDebt)
	require.NotNil(t, d.Client)
	assert.Equal(t, "Aziz", d.Client.Name)
	assert.Equal(t, int64(5000), d.Discount)

	// Null client deselects; absent fields stay.
	w = e.do(t, http.MethodPut, "/sessions/"+id+"/draft", map[string]any{"client": nil, "is_debt": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/sessions/"+id+"/draft", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Nil(t, d.Client)
	assert.Equal(t, int64(5000), d.Discount, "absent discount keeps previous value")
}

func TestSubmitOrder(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 15, 10))

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Receipt struct {
			OrderID      string `json:"order_id"`
			PayableLocal int64  `json:"payable_local"`
		} `json:"receipt"`
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ord-1", resp.Receipt.OrderID)
	assert.Equal(t, int64(187500), resp.Receipt.PayableLocal)
	assert.NotEmpty(t, resp.Token)

	// Cart is cleared after a successful submission.
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/cart", nil)
	assert.Empty(t, decodeCart(t, w).Lines)
}

func TestSubmitOrder_EmptyCart(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cart is empty")

	e.orders.mu.Lock()
	defer e.orders.mu.Unlock()
	assert.Zero(t, e.orders.calls, "validation failures must not reach the backend")
}

func TestSubmitOrder_DebtRequiresClient(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 15, 10))
	e.do(t, http.MethodPut, "/sessions/"+id+"/draft", map[string]any{"is_debt": true})

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "select a client")
}

func TestSubmitOrder_BackendErrorVerbatim(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 15, 10))

	e.orders.mu.Lock()
	e.orders.err = &backend.Error{Message: "Недостаточно товара на складе"}
	e.orders.mu.Unlock()

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/checkout", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Недостаточно товара на складе")

	// Cart survives a failed submission.
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/cart", nil)
	assert.Len(t, decodeCart(t, w).Lines, 1)
}

func TestSubmitOrder_InternalErrorHidden(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/cart/items", productBody("p1", 15, 10))

	e.orders.mu.Lock()
	e.orders.err = errors.New("pq: connection refused")
	e.orders.mu.Unlock()

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/checkout", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

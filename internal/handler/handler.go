// Package handler exposes the terminal API over HTTP. Handlers decode with
// go-faster/jx, delegate to the domain services, and map typed domain errors
// to status codes.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/uzpos/kassa/internal/backend"
	"github.com/uzpos/kassa/internal/currency"
	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/domain/catalog"
	"github.com/uzpos/kassa/internal/domain/checkout"
	"github.com/uzpos/kassa/internal/session"
)

// Handler wires the HTTP surface to the session registry, catalog and
// currency services.
type Handler struct {
	sessions *session.Registry
	catalog  *catalog.Service
	conv     *currency.Converter
	rates    currency.RateSource
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(sessions *session.Registry, cat *catalog.Service, conv *currency.Converter, rates currency.RateSource) *Handler {
	return &Handler{
		sessions: sessions,
		catalog:  cat,
		conv:     conv,
		rates:    rates,
	}
}

// Routes returns the API route table. Mount it under a path prefix with
// http.StripPrefix.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{id}/cart", h.getCart)
	mux.HandleFunc("POST /sessions/{id}/cart/items", h.addItem)
	mux.HandleFunc("PUT /sessions/{id}/cart/items/{productID}", h.setQuantity)
	mux.HandleFunc("DELETE /sessions/{id}/cart/items/{productID}", h.removeItem)
	mux.HandleFunc("DELETE /sessions/{id}/cart", h.clearCart)
	mux.HandleFunc("PUT /sessions/{id}/draft", h.updateDraft)
	mux.HandleFunc("GET /sessions/{id}/draft", h.getDraft)
	mux.HandleFunc("POST /sessions/{id}/checkout", h.submitOrder)

	mux.HandleFunc("GET /products/search", h.searchProducts)
	mux.HandleFunc("GET /products/scan", h.scanBarcode)

	mux.HandleFunc("GET /exchange-rate", h.getRate)
	mux.HandleFunc("POST /exchange-rate/refresh", h.refreshRate)

	return mux
}

// writeJSON encodes a response body with the given encoder function.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError emits the {"code","message"} error shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// respondError maps domain errors to HTTP status codes. Rejections carry
// their message verbatim so the terminal can show it to the cashier; unknown
// errors are logged and hidden behind a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr   *cart.InsufficientStockError
		backendErr *backend.Error
	)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusUnprocessableEntity, stockErr.Error())
	case errors.Is(err, cart.ErrPriceNotSet), errors.Is(err, cart.ErrOutOfStock):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrClientRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrSubmitInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &backendErr):
		// Backend rejections surface verbatim, never rephrased.
		writeError(w, http.StatusBadGateway, backendErr.Message)
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// session resolves the {id} path value to a live session.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return s, true
}

// encodeItems writes a catalog item list as {"items":[...]}.
func encodeItems(items []catalog.Item) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range items {
						encodeItem(e, it)
					}
				})
			})
		})
	}
}

func encodeItem(e *jx.Encoder, it catalog.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		if it.Code != "" {
			e.Field("code", func(e *jx.Encoder) { e.Str(it.Code) })
		}
		e.Field("price", func(e *jx.Encoder) { e.Float64(it.PriceUSD.InexactFloat64()) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(it.Stock) })
		if it.Image != "" {
			e.Field("image", func(e *jx.Encoder) { e.Str(it.Image) })
		}
		if it.CurrencyType != "" {
			e.Field("currency_type", func(e *jx.Encoder) { e.Str(it.CurrencyType) })
		}
	})
}

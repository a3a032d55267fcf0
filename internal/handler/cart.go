package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/domain/catalog"
	"github.com/uzpos/kassa/internal/session"
)

// maxBodyBytes caps request bodies; cart payloads are tiny.
const maxBodyBytes = 1 << 20

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("session_id", func(e *jx.Encoder) { e.Str(s.ID) })
		})
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeCart(w, http.StatusOK, s)
}

// addItem puts one unit of the posted product into the cart. The body is the
// product as returned by search or scan; price and stock become the line's
// snapshot.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	item, err := decodeItemBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed product payload")
		return
	}
	if item.ID == "" {
		writeError(w, http.StatusBadRequest, "product id is required")
		return
	}

	if err := s.Cart.AddItem(item); err != nil {
		respondError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, s)
}

// setQuantity replaces the quantity of an existing line. Zero and negative
// values remove the line.
func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	quantity, err := decodeQuantityBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed quantity payload")
		return
	}

	if err := s.Cart.SetQuantity(r.PathValue("productID"), quantity); err != nil {
		respondError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, s)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Cart.RemoveItem(r.PathValue("productID"))
	h.writeCart(w, http.StatusOK, s)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Cart.Clear()
	h.writeCart(w, http.StatusOK, s)
}

// writeCart renders the cart view: lines with derived totals plus cart-level
// aggregates in both currencies.
func (h *Handler) writeCart(w http.ResponseWriter, status int, s *session.Session) {
	lines := s.Cart.Lines()
	totalUSD := s.Cart.TotalAmount().InexactFloat64()

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("lines", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, l := range lines {
						h.encodeLine(e, l)
					}
				})
			})
			e.Field("item_count", func(e *jx.Encoder) { e.Int(s.Cart.TotalItemCount()) })
			e.Field("total_usd", func(e *jx.Encoder) { e.Float64(totalUSD) })
			e.Field("total_local", func(e *jx.Encoder) { e.Int64(h.conv.ToLocal(totalUSD)) })
			e.Field("rate", func(e *jx.Encoder) { e.Float64(h.conv.Rate()) })
		})
	})
}

func (h *Handler) encodeLine(e *jx.Encoder, l cart.Line) {
	lineUSD := l.Total().InexactFloat64()
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		if l.Code != "" {
			e.Field("code", func(e *jx.Encoder) { e.Str(l.Code) })
		}
		e.Field("price", func(e *jx.Encoder) { e.Float64(l.UnitPriceUSD.InexactFloat64()) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(l.Stock) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("total_usd", func(e *jx.Encoder) { e.Float64(lineUSD) })
		e.Field("total_local", func(e *jx.Encoder) { e.Int64(h.conv.ToLocal(lineUSD)) })
		if l.Image != "" {
			e.Field("image", func(e *jx.Encoder) { e.Str(l.Image) })
		}
	})
}

// decodeItemBody parses a product payload in the same shape search returns.
func decodeItemBody(r *http.Request) (catalog.Item, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return catalog.Item{}, err
	}

	var item catalog.Item
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "product_id":
			s, err := d.Str()
			item.ID = s
			return err
		case "name":
			s, err := d.Str()
			item.Name = s
			return err
		case "code":
			s, err := d.Str()
			item.Code = s
			return err
		case "price":
			f, err := d.Float64()
			item.PriceUSD = decimal.NewFromFloat(f)
			return err
		case "stock":
			n, err := d.Int()
			item.Stock = n
			return err
		case "image":
			s, err := d.Str()
			item.Image = s
			return err
		case "cost":
			f, err := d.Float64()
			item.CostUSD = decimal.NewFromFloat(f)
			return err
		case "currency_type":
			s, err := d.Str()
			item.CurrencyType = s
			return err
		default:
			return d.Skip()
		}
	})
	return item, err
}

func decodeQuantityBody(r *http.Request) (int, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return 0, err
	}

	quantity := 0
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		n, err := d.Int()
		quantity = n
		return err
	})
	return quantity, err
}

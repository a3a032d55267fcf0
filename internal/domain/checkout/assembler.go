package checkout

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/uzpos/kassa/internal/domain/cart"
)

// Validation errors for order assembly. Both abort before any network call.
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrClientRequired = errors.New("select a client")
)

// OrderItem is the wire shape of one order line: product and amount only.
// Price is intentionally absent — the backend is the pricing authority and
// the client-held price is for display and estimation.
type OrderItem struct {
	ProductID string
	Amount    int
}

// OrderRequest is the payload for the backend order-creation endpoint.
type OrderRequest struct {
	IsDebt        bool
	Items         []OrderItem
	ClientID      string
	DiscountLocal int64
	Comment       string
}

// BuildOrderRequest validates the draft against the cart snapshot and
// assembles the creation payload. Rejections leave cart and draft intact for
// correction.
func BuildOrderRequest(lines []cart.Line, d Draft) (OrderRequest, error) {
	if len(lines) == 0 {
		return OrderRequest{}, ErrEmptyCart
	}
	if d.IsDebt && d.Client == nil {
		return OrderRequest{}, ErrClientRequired
	}

	items := make([]OrderItem, len(lines))
	for i, l := range lines {
		items[i] = OrderItem{ProductID: l.ProductID, Amount: l.Quantity}
	}

	req := OrderRequest{
		IsDebt:        d.IsDebt,
		Items:         items,
		DiscountLocal: d.DiscountLocal,
		Comment:       d.Comment,
	}
	if d.Client != nil {
		req.ClientID = d.Client.ID
	}
	return req, nil
}

// EncodeJSON renders the request as the backend expects it:
// {"is_debt":0|1,"items":[{"product_id","amount"}],...}. Optional fields are
// omitted when empty or zero, never sent as null.
func (r OrderRequest) EncodeJSON() []byte {
	e := &jx.Encoder{}
	e.ObjStart()

	e.FieldStart("is_debt")
	if r.IsDebt {
		e.Int(1)
	} else {
		e.Int(0)
	}

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range r.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("amount")
		e.Int(it.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()

	if r.ClientID != "" {
		e.FieldStart("client_id")
		e.Str(r.ClientID)
	}
	if r.DiscountLocal != 0 {
		e.FieldStart("discount")
		e.Int64(r.DiscountLocal)
	}
	if r.Comment != "" {
		e.FieldStart("comments")
		e.Str(r.Comment)
	}

	e.ObjEnd()
	return e.Bytes()
}

package checkout

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/currency"
)

// receiptTimeLayout is the creation timestamp format printed on receipts.
const receiptTimeLayout = "02.01.2006 15:04"

// ReceiptLine is a frozen copy of one cart line for receipt rendering.
type ReceiptLine struct {
	Name       string  `json:"name"`
	Code       string  `json:"code,omitempty"`
	Quantity   int     `json:"quantity"`
	PriceUSD   float64 `json:"price_usd"`
	TotalUSD   float64 `json:"total_usd"`
	TotalLocal int64   `json:"total_local"`
}

// Receipt is the view-model handed to the external rendering surface after a
// successful submission. The cart engine does not retain it.
type Receipt struct {
	OrderID       string        `json:"order_id"`
	CreatedAt     string        `json:"created_at"`
	Lines         []ReceiptLine `json:"lines"`
	TotalUSD      float64       `json:"total_usd"`
	TotalLocal    int64         `json:"total_local"`
	DiscountLocal int64         `json:"discount,omitempty"`
	PayableLocal  int64         `json:"payable_local"`
	Rate          float64       `json:"rate"`
	IsDebt        bool          `json:"is_debt"`
	ClientName    string        `json:"client_name,omitempty"`
	Comment       string        `json:"comment,omitempty"`
}

// BuildReceipt freezes the cart and draft into a receipt view-model. When the
// backend did not return an order identifier, a timestamp-based local id is
// used instead. Payable is round(totalUSD × rate) − discount, floored at zero.
func BuildReceipt(lines []cart.Line, d Draft, conv *currency.Converter, orderID string, now time.Time) Receipt {
	if orderID == "" {
		orderID = "local-" + strconv.FormatInt(now.UnixMilli(), 10)
	}

	out := make([]ReceiptLine, len(lines))
	totalUSD := 0.0
	for i, l := range lines {
		lineUSD := l.Total().InexactFloat64()
		out[i] = ReceiptLine{
			Name:       l.Name,
			Code:       l.Code,
			Quantity:   l.Quantity,
			PriceUSD:   l.UnitPriceUSD.InexactFloat64(),
			TotalUSD:   lineUSD,
			TotalLocal: conv.ToLocal(lineUSD),
		}
		totalUSD += lineUSD
	}

	totalLocal := conv.ToLocal(totalUSD)
	payable := totalLocal - d.DiscountLocal
	if payable < 0 {
		payable = 0
	}

	r := Receipt{
		OrderID:       orderID,
		CreatedAt:     now.Format(receiptTimeLayout),
		Lines:         out,
		TotalUSD:      totalUSD,
		TotalLocal:    totalLocal,
		DiscountLocal: d.DiscountLocal,
		PayableLocal:  payable,
		Rate:          conv.Rate(),
		IsDebt:        d.IsDebt,
		Comment:       d.Comment,
	}
	if d.Client != nil {
		r.ClientName = d.Client.Name
	}
	return r
}

// Token serializes the receipt for hand-off to the rendering surface via a
// query parameter. The core never reads it back.
func (r Receipt) Token() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

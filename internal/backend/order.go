package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/uzpos/kassa/internal/domain/checkout"
)

// CreateOrder submits an assembled order and returns the identifier the
// backend assigned. An empty identifier is valid: the receipt builder falls
// back to a local timestamp-based id.
func (c *Client) CreateOrder(ctx context.Context, req checkout.OrderRequest) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/create-order", nil, req.EncodeJSON())
	if err != nil {
		return "", err
	}

	orderID := ""
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return "", nil
	}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "order_id":
			return decodeStringish(d, &orderID)
		case "result":
			// Some backend versions nest the order under "result".
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key == "id" || key == "order_id" {
					return decodeStringish(d, &orderID)
				}
				return d.Skip()
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", errors.Wrap(err, "decode create order response")
	}
	return orderID, nil
}

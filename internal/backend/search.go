package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/uzpos/kassa/internal/domain/catalog"
)

// SearchProducts queries the backend catalog by keyword. The keyword
// threshold rules live in the catalog service; this method always performs
// exactly one call.
func (c *Client) SearchProducts(ctx context.Context, keyword string) ([]catalog.Item, error) {
	q := url.Values{"keyword": []string{keyword}}
	data, err := c.do(ctx, http.MethodPost, "/search-products", q, nil)
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}

	items := []catalog.Item{}
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "result" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeItem(d)
			if err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	}); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}
	return items, nil
}

func decodeItem(d *jx.Decoder) (catalog.Item, error) {
	var item catalog.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return decodeStringish(d, &item.ID)
		case "name":
			s, err := d.Str()
			item.Name = s
			return err
		case "code":
			return decodeStringish(d, &item.Code)
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

// decodeStringish accepts identifiers the backend sends as either strings or
// numbers.
func decodeStringish(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		*dst = s
		return err
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		*dst = n.String()
		return nil
	case jx.Null:
		return d.Null()
	default:
		return d.Skip()
	}
}

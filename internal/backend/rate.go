package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// CurrentRate fetches the USD→local exchange rate. An absent rate field is
// reported as 0; callers keep their previous value for non-positive rates.
func (c *Client) CurrentRate(ctx context.Context) (float64, error) {
	data, err := c.do(ctx, http.MethodGet, "/current-exchange-rate", nil, nil)
	if err != nil {
		return 0, errors.Wrap(err, "current exchange rate")
	}

	rate := 0.0
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "rate" {
			return d.Skip()
		}
		f, err := d.Float64()
		if err != nil {
			return err
		}
		rate = f
		return nil
	}); err != nil {
		return 0, errors.Wrap(err, "decode rate response")
	}
	return rate, nil
}

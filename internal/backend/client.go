// Package backend is the REST client for the remote ERP backend that owns all
// business logic: pricing, stock decrement, and the debt ledger. This service
// only consumes its request/response contracts.
package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Error is a failure reported by the backend itself, carrying its message
// verbatim so the user sees the backend's reason.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Client talks to the ERP backend. Outbound calls run through a circuit
// breaker so a dead backend fails fast instead of piling up requests.
type Client struct {
	http    *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "erp-backend",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Backend-reported rejections are application answers, not
			// transport failures; they must not trip the breaker.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				var be *Error
				return errors.As(err, &be)
			},
		}),
	}
}

// do executes one HTTP exchange through the breaker and returns the response
// body. Non-2xx responses with a backend {"error": ...} body become *Error;
// anything else is a transport-level failure.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "execute request")
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, errors.Wrap(err, "read response")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if msg := extractErrorMessage(data); msg != "" {
				return nil, &Error{Message: msg}
			}
			return nil, errors.Errorf("backend returned status %d", resp.StatusCode)
		}

		// Some endpoints report failures with 200 + {"error": ...}.
		if msg := extractErrorMessage(data); msg != "" {
			return nil, &Error{Message: msg}
		}
		return data, nil
	})
}

// extractErrorMessage pulls the "error" field out of a backend response body.
// Returns "" when the body is not an object or has no error field.
func extractErrorMessage(data []byte) string {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return ""
	}

	msg := ""
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		msg = s
		return nil
	})
	return msg
}

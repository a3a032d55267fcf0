package checkout

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/currency"
)

// ErrSubmitInFlight is returned when a submission is already running for this
// flow. The trigger is effectively disabled; concurrent submits are ignored
// rather than queued.
var ErrSubmitInFlight = errors.New("submission already in progress")

// Submitter sends an assembled order to the backend and returns the order
// identifier it assigned (possibly empty).
type Submitter interface {
	CreateOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
}

// Flow orchestrates one session's order submission:
// validate → submit → on success clear cart, reset draft, build receipt.
// On any failure the cart and draft are left intact so the user can retry
// without re-entering data.
type Flow struct {
	submitter Submitter
	conv      *currency.Converter
	now       func() time.Time

	inFlight atomic.Bool
}

// NewFlow creates a submission flow.
func NewFlow(submitter Submitter, conv *currency.Converter) *Flow {
	return &Flow{
		submitter: submitter,
		conv:      conv,
		now:       time.Now,
	}
}

// Submit runs the full submission sequence. Validation failures return before
// any network call. Exactly one submission can be in flight at a time.
func (f *Flow) Submit(ctx context.Context, engine *cart.Engine, draft *Draft) (Receipt, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		return Receipt{}, ErrSubmitInFlight
	}
	defer f.inFlight.Store(false)

	lines := engine.Lines()
	req, err := BuildOrderRequest(lines, *draft)
	if err != nil {
		return Receipt{}, err
	}

	orderID, err := f.submitter.CreateOrder(ctx, req)
	if err != nil {
		return Receipt{}, err
	}

	receipt := BuildReceipt(lines, *draft, f.conv, orderID, f.now())
	engine.Clear()
	draft.Reset()
	return receipt, nil
}

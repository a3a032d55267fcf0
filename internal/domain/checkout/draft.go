package checkout

// Client identifies a debtor client selected for a debt sale.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Draft carries the order metadata accumulated on the checkout screen. It is
// created when the user opens checkout and reset to defaults on successful
// submission or explicit cancel. The cart itself lives in the cart engine;
// the draft only references it at submit time.
type Draft struct {
	IsDebt        bool
	Client        *Client
	DiscountLocal int64
	Comment       string
}

// Reset restores every optional field to its default.
func (d *Draft) Reset() {
	*d = Draft{}
}

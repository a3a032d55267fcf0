package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/uzpos/kassa/internal/currency"
)

var _ currency.RateStore = (*RateStore)(nil)

// RateStore implements currency.RateStore backed by PostgreSQL. The table
// holds a single row; last writer wins.
type RateStore struct {
	pool *pgxpool.Pool
}

// NewRateStore returns a RateStore that uses the given pool.
func NewRateStore(pool *pgxpool.Pool) *RateStore {
	return &RateStore{pool: pool}
}

// Load reads the persisted rate. A missing row yields zero, which callers
// treat as absent.
func (s *RateStore) Load(ctx context.Context) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := s.pool.QueryRow(ctx, `SELECT rate FROM exchange_rate WHERE id = 1`).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load exchange rate")
	}
	return rate, nil
}

// Save upserts the rate slot.
func (s *RateStore) Save(ctx context.Context, rate decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchange_rate (id, rate, updated_at)
		 VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE
		 SET rate = EXCLUDED.rate, updated_at = now()`,
		rate)
	if err != nil {
		return errors.Wrap(err, "save exchange rate")
	}
	return nil
}

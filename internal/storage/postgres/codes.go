package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CodeStore reads and writes the known-barcode corpus used to prime the
// catalog scan bloom filter.
type CodeStore struct {
	pool *pgxpool.Pool
}

// NewCodeStore returns a CodeStore that uses the given pool.
func NewCodeStore(pool *pgxpool.Pool) *CodeStore {
	return &CodeStore{pool: pool}
}

// All returns every known barcode.
func (s *CodeStore) All(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM known_codes`)
	if err != nil {
		return nil, errors.Wrap(err, "query known codes")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, errors.Wrap(err, "scan code")
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ReplaceAll swaps the corpus for a new one in a single transaction, using
// COPY for the bulk insert.
func (s *CodeStore) ReplaceAll(ctx context.Context, codes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE known_codes`); err != nil {
		return errors.Wrap(err, "truncate known codes")
	}

	rows := make([][]any, len(codes))
	for i, c := range codes {
		rows[i] = []any{c}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"known_codes"},
		[]string{"code"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return errors.Wrap(err, "copy codes")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

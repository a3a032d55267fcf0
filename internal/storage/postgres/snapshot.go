package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uzpos/kassa/internal/domain/cart"
)

var _ cart.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore implements cart.SnapshotStore backed by PostgreSQL. One JSONB
// slot per session, last writer wins.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore returns a SnapshotStore that uses the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Load reads the snapshot for sessionID. A missing row yields an empty cart;
// an unreadable JSON payload is an error the engine treats as absent.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) ([]cart.Line, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT lines FROM cart_snapshots WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %q", sessionID)
	}

	var lines []cart.Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %q", sessionID)
	}
	return lines, nil
}

// Save upserts the snapshot for sessionID.
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, lines []cart.Line) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cart_snapshots (session_id, lines, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE
		 SET lines = EXCLUDED.lines, updated_at = now()`,
		sessionID, raw)
	if err != nil {
		return errors.Wrapf(err, "save snapshot %q", sessionID)
	}
	return nil
}

// Clear removes the snapshot for sessionID. Clearing an absent snapshot is a
// no-op.
func (s *SnapshotStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM cart_snapshots WHERE session_id = $1`, sessionID); err != nil {
		return errors.Wrapf(err, "clear snapshot %q", sessionID)
	}
	return nil
}

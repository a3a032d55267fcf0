// Package session tracks per-terminal sessions: each holds a cart engine, a
// checkout draft, and a submission flow.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uzpos/kassa/internal/domain/cart"
	"github.com/uzpos/kassa/internal/domain/checkout"
	"github.com/uzpos/kassa/internal/currency"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session bundles the per-terminal state. Cart mutations are serialized by
// the engine; the draft is guarded here.
type Session struct {
	ID   string
	Cart *cart.Engine
	Flow *checkout.Flow

	mu    sync.Mutex
	draft checkout.Draft
}

// Draft returns a copy of the current draft.
func (s *Session) Draft() checkout.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// UpdateDraft applies fn to the draft under the session lock.
func (s *Session) UpdateDraft(fn func(*checkout.Draft)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.draft)
}

// Submit runs the order submission flow against this session's cart and a
// copy of the draft. On success the session draft is reset to defaults; on
// failure it is left intact for retry.
func (s *Session) Submit(ctx context.Context) (checkout.Receipt, error) {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()

	receipt, err := s.Flow.Submit(ctx, s.Cart, &draft)
	if err != nil {
		return checkout.Receipt{}, err
	}

	s.mu.Lock()
	s.draft = checkout.Draft{}
	s.mu.Unlock()
	return receipt, nil
}

// Registry owns all live sessions. Sessions idle longer than the TTL are
// evicted; their carts survive in the snapshot store and are rehydrated on
// the next touch.
type Registry struct {
	store     cart.SnapshotStore
	submitter checkout.Submitter
	conv      *currency.Converter
	ttl       time.Duration
	lg        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry creates a session registry.
func NewRegistry(store cart.SnapshotStore, submitter checkout.Submitter, conv *currency.Converter, ttl time.Duration, lg *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		submitter: submitter,
		conv:      conv,
		ttl:       ttl,
		lg:        lg,
		sessions:  make(map[string]*sessionEntry),
	}
}

// Create starts a new session with an empty cart.
func (r *Registry) Create() *Session {
	id := uuid.New().String()
	s := &Session{
		ID:   id,
		Cart: cart.NewEngine(id, r.store, r.lg),
		Flow: checkout.NewFlow(r.submitter, r.conv),
	}

	r.mu.Lock()
	r.sessions[id] = &sessionEntry{session: s, lastSeen: time.Now()}
	r.mu.Unlock()
	return s
}

// Get returns the session for id, rehydrating an evicted session's cart from
// its persisted snapshot. Unknown ids fail with ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = time.Now()
		s := e.session
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	// Rehydrate outside the lock: the snapshot load may hit the database.
	engine := cart.Restore(ctx, id, r.store, r.lg)
	s := &Session{
		ID:   id,
		Cart: engine,
		Flow: checkout.NewFlow(r.submitter, r.conv),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		// Lost the race with a concurrent rehydration; keep the first one.
		e.lastSeen = time.Now()
		return e.session, nil
	}
	r.sessions[id] = &sessionEntry{session: s, lastSeen: time.Now()}
	return s, nil
}

// EvictIdle drops sessions untouched for longer than the TTL and returns how
// many were removed. Carts remain recoverable via their snapshots.
func (r *Registry) EvictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

// StartEviction runs EvictIdle on a ticker until ctx is cancelled.
func (r *Registry) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if n := r.EvictIdle(now); n > 0 {
					r.lg.Debug("Evicted idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

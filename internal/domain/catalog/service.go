package catalog

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// minKeywordLen is the exclusive lower bound for triggering a backend search.
// Keywords of length 1..minKeywordLen are a deliberate no-op so that a cashier
// typing does not flood the backend with one-letter queries.
const minKeywordLen = 3

// Service wraps the backend product search with the keyword threshold rules
// and a bloom-filter fast path for barcode scans.
type Service struct {
	backend Searcher

	// mu guards codes. The filter is replaced wholesale by PrimeCodes and
	// read by Scan; bloom filters are not safe for concurrent mutation.
	mu    sync.RWMutex
	codes *bloom.BloomFilter
}

// NewService creates a catalog Service. The bloom filter starts unprimed:
// until PrimeCodes is called every scan falls through to the backend.
func NewService(backend Searcher) *Service {
	return &Service{backend: backend}
}

// Search applies the keyword threshold contract:
//   - empty keyword clears: returns an empty, non-nil slice without a call;
//   - 1..3 runes: returns ErrKeywordTooShort without a call;
//   - longer keywords trigger exactly one backend search.
func (s *Service) Search(ctx context.Context, keyword string) ([]Item, error) {
	runes := []rune(keyword)
	switch {
	case len(runes) == 0:
		return []Item{}, nil
	case len(runes) <= minKeywordLen:
		return nil, ErrKeywordTooShort
	}

	items, err := s.backend.SearchProducts(ctx, keyword)
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	return items, nil
}

// PrimeCodes installs a bloom filter over the known barcode corpus. Scans for
// codes the filter has definitely never seen skip the backend round trip.
func (s *Service) PrimeCodes(codes []string, fpr float64) {
	n := uint(len(codes))
	if n == 0 {
		return
	}
	f := bloom.NewWithEstimates(n, fpr)
	for _, c := range codes {
		f.AddString(c)
	}

	s.mu.Lock()
	s.codes = f
	s.mu.Unlock()
}

// Scan looks a scanned barcode up in the catalog. A primed filter answers
// "definitely unknown" locally; possible hits (and unprimed filters) go to
// the backend. Bloom false positives cost one extra backend call, never a
// wrong answer.
func (s *Service) Scan(ctx context.Context, code string) ([]Item, error) {
	if code == "" {
		return []Item{}, nil
	}

	s.mu.RLock()
	f := s.codes
	s.mu.RUnlock()

	if f != nil && !f.TestString(code) {
		return []Item{}, nil
	}

	items, err := s.backend.SearchProducts(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "scan barcode")
	}
	return items, nil
}

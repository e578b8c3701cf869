package assessment

import (
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// Store keeps the latest published assessment per dataset. Readers never
// block; a publish swaps the pointer whole.
type Store struct {
	mu       sync.Mutex
	datasets map[string]*atomic.Pointer[domain.Assessment]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{datasets: make(map[string]*atomic.Pointer[domain.Assessment])}
}

func (s *Store) slot(datasetID string) *atomic.Pointer[domain.Assessment] {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.datasets[datasetID]
	if !ok {
		p = &atomic.Pointer[domain.Assessment]{}
		s.datasets[datasetID] = p
	}
	return p
}

// Publish makes a the current assessment of its dataset. An older assessment
// never replaces a newer one.
func (s *Store) Publish(a *domain.Assessment) {
	if a == nil {
		return
	}
	p := s.slot(a.DatasetID)
	for {
		cur := p.Load()
		if cur != nil && cur.Timestamp.After(a.Timestamp) {
			return
		}
		if p.CompareAndSwap(cur, a) {
			return
		}
	}
}

// Current returns the latest assessment of a dataset, or nil.
func (s *Store) Current(datasetID string) *domain.Assessment {
	return s.slot(datasetID).Load()
}

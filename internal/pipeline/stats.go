package pipeline

import (
	"sync"

	"github.com/ternarybob/covera/internal/models"
)

// Stats are the counters of one run, shared by every fetch worker
type Stats struct {
	mu       sync.Mutex
	counters models.RunCounters
}

// Update applies fn to the counters under the lock
func (s *Stats) Update(fn func(c *models.RunCounters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.counters)
}

// Snapshot returns a copy of the counters
func (s *Stats) Snapshot() models.RunCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

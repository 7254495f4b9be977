package pipeline

import "sync"

// SeenSet holds the canonical addresses seen during one run
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// Add records a canonical address and reports whether it was new
func (s *SeenSet) Add(canonical string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[canonical]; exists {
		return false
	}
	s.seen[canonical] = struct{}{}
	return true
}

// Len returns the number of unique addresses
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

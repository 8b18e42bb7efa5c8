package recorder

import "sync"

// PolicyStore holds the recording policy of every live stream.
// Implementations must be safe for concurrent use: webhooks write while
// segment pipelines read.
type PolicyStore interface {
	Put(stream string, p Policy)
	Get(stream string) (Policy, bool)
	Remove(stream string)
	Len() int
}

// InMemoryPolicyStore is an in-memory implementation of PolicyStore.
type InMemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewInMemoryPolicyStore returns a new empty in-memory store.
func NewInMemoryPolicyStore() *InMemoryPolicyStore {
	return &InMemoryPolicyStore{
		policies: make(map[string]Policy),
	}
}

// Put implements PolicyStore.Put. An existing policy for stream is replaced.
func (s *InMemoryPolicyStore) Put(stream string, p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[stream] = p
}

// Get implements PolicyStore.Get.
func (s *InMemoryPolicyStore) Get(stream string) (Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[stream]
	return p, ok
}

// Remove implements PolicyStore.Remove. Removing an unknown stream is a no-op.
func (s *InMemoryPolicyStore) Remove(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, stream)
}

// Len implements PolicyStore.Len.
func (s *InMemoryPolicyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}

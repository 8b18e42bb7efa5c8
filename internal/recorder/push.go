package recorder

import (
	"context"
	"sync"
)

// Relay pushes a live stream to another server.
type Relay interface {
	StartPush(ctx context.Context, stream string, target PushTarget) (sessionID string, err error)
	StopPush(ctx context.Context, sessionID string) error
}

// PushStore holds the running push session of every stream.
type PushStore interface {
	Put(stream string, s PushSession)
	// Take removes and returns the stream's session.
	Take(stream string) (PushSession, bool)
	Len() int
}

// InMemoryPushStore is an in-memory implementation of PushStore.
type InMemoryPushStore struct {
	mu       sync.Mutex
	sessions map[string]PushSession
}

// NewInMemoryPushStore returns a new empty in-memory push store.
func NewInMemoryPushStore() *InMemoryPushStore {
	return &InMemoryPushStore{sessions: make(map[string]PushSession)}
}

// Put implements PushStore.Put.
func (s *InMemoryPushStore) Put(stream string, ps PushSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[stream] = ps
}

// Take implements PushStore.Take.
func (s *InMemoryPushStore) Take(stream string) (PushSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[stream]
	delete(s.sessions, stream)
	return ps, ok
}

// Len implements PushStore.Len.
func (s *InMemoryPushStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

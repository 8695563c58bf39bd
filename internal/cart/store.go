package cart

import (
	"context"
	"sync"
)

// Store persists cart line items across sessions. It is an optional
// collaborator: the engine loads at session creation and saves on each
// mutation, but does not depend on it for correctness within a session.
type Store interface {
	// Load returns the persisted line items for a session.
	// Returns an empty slice if nothing was persisted.
	Load(ctx context.Context, sessionID string) ([]LineItem, error)

	// Save replaces the persisted line items for a session.
	Save(ctx context.Context, sessionID string, items []LineItem) error
}

// memoryStore implements Store using an in-memory map.
type memoryStore struct {
	mu    sync.RWMutex
	carts map[string][]LineItem
}

// NewMemoryStore creates a new instance of Store backed by process memory.
func NewMemoryStore() Store {
	return &memoryStore{
		carts: make(map[string][]LineItem),
	}
}

func (s *memoryStore) Load(_ context.Context, sessionID string) ([]LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]LineItem, len(s.carts[sessionID]))
	copy(items, s.carts[sessionID])
	return items, nil
}

func (s *memoryStore) Save(_ context.Context, sessionID string, items []LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]LineItem, len(items))
	copy(stored, items)
	s.carts[sessionID] = stored
	return nil
}

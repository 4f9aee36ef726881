package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit events in memory, keyed by tenant so compliance
// queries stay inside the tenant boundary.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]Event)
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.TenantRootID] = append(s.events[event.TenantRootID], event)
	return nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantRootID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[tenantRootID]...), nil
}

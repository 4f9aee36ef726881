// Package store provides consent record sources for the evaluator.
package store

import (
	"context"
	"sync"

	"custos/internal/authz/models"
)

type key struct {
	userID   string
	objectID string
}

// InMemoryStore holds consent records in memory. Used by the server wiring in
// development mode and by tests; production deployments inject their own
// RecordSource backed by the platform's consent service.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[key][]models.ConsentRecord
}

// New constructs an empty in-memory consent record source.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[key][]models.ConsentRecord)}
}

// Put replaces the records for a (user, object) pair.
func (s *InMemoryStore) Put(userID, objectID string, records ...models.ConsentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key{userID, objectID}] = append([]models.ConsentRecord(nil), records...)
}

// Lookup returns copies of the records for a (user, object) pair. A missing
// pair is an empty result, not an error: absence of consent is a policy
// outcome, not an infrastructure failure.
func (s *InMemoryStore) Lookup(_ context.Context, userID, objectID string) ([]models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.records[key{userID, objectID}]
	if len(stored) == 0 {
		return nil, nil
	}
	// Return copies to prevent external modifications
	out := make([]models.ConsentRecord, len(stored))
	copy(out, stored)
	return out, nil
}

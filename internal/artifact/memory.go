package artifact

import (
	"context"
	"sync"

	"lexaudit/pkg/platform/sentinel"
)

// InMemoryStore keeps the default deployment lightweight and testable. It
// intentionally favors clarity over performance.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[Key][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]map[Key][]byte)}
}

func (s *InMemoryStore) Save(_ context.Context, runID string, key Key, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.runs[runID]
	if !ok {
		slots = make(map[Key][]byte)
		s.runs[runID] = slots
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	slots[key] = stored
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, runID string, key Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if payload, ok := s.runs[runID][key]; ok {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	return nil, sentinel.ErrNotFound
}

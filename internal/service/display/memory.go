package display

import (
	"context"
	"sync"
)

// MemoryStore is an in-process TargetStore. Targets exist between Attach and
// Detach.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[string]string)}
}

func (s *MemoryStore) Attach(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[targetID]; !ok {
		s.targets[targetID] = ""
	}
}

func (s *MemoryStore) Detach(targetID string) {
	s.mu.Lock()
	delete(s.targets, targetID)
	s.mu.Unlock()
}

func (s *MemoryStore) Exists(ctx context.Context, targetID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.targets[targetID]
	return ok, nil
}

// Write ignores detached targets.
func (s *MemoryStore) Write(ctx context.Context, targetID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[targetID]; ok {
		s.targets[targetID] = label
	}
	return nil
}

func (s *MemoryStore) Label(targetID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	label, ok := s.targets[targetID]
	return label, ok
}

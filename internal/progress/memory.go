package progress

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

type memoryEntry struct {
	current   json.RawMessage
	snapshots []json.RawMessage
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	retention int
}

// NewMemoryStore creates an empty store keeping up to retention snapshots
// per key (DefaultSnapshots when <= 0).
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultSnapshots
	}
	return &MemoryStore{entries: make(map[string]*memoryEntry), retention: retention}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key Key, payload json.RawMessage) error {
	if err := ValidatePayload(payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok {
		e = &memoryEntry{}
		s.entries[key.String()] = e
	}
	if e.current != nil {
		e.snapshots = append(e.snapshots, e.current)
		if len(e.snapshots) > s.retention {
			e.snapshots = e.snapshots[len(e.snapshots)-s.retention:]
		}
	}
	e.current = slices.Clone(payload)
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key Key) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok || e.current == nil {
		return EmptyDraft, nil
	}
	return slices.Clone(e.current), nil
}

// Discard implements Store.
func (s *MemoryStore) Discard(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
	return nil
}

// Snapshots returns the retained previous saves for key, oldest first.
func (s *MemoryStore) Snapshots(key Key) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	if !ok {
		return nil
	}
	return slices.Clone(e.snapshots)
}

package memory

import (
	"context"
	"sync"

	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/ports"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the snapshot in memory. The snapshot is serialized at
// save time so later mutations by the caller cannot leak into the store.
func (s *Store) Save(ctx context.Context, sessionID string, snap *engine.Snapshot) error {
	data, err := engine.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = data
	return nil
}

// Load retrieves the snapshot from memory.
func (s *Store) Load(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.data[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, ports.ErrSnapshotNotFound
	}
	return engine.DecodeSnapshot(data)
}

// Delete removes the snapshot. Deleting an unknown session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns the stored session IDs in no particular order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	return sessions, nil
}

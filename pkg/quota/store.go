package quota

import "context"

// MemoryStore keeps cumulative usage in-process. Synchronization is the
// Tracker's job; the store itself is plain state.
type MemoryStore struct {
	used int64
}

// NewMemoryStore creates an empty in-process usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the recorded usage.
func (s *MemoryStore) Load(_ context.Context) (int64, error) {
	return s.used, nil
}

// Save records the usage.
func (s *MemoryStore) Save(_ context.Context, used int64) error {
	s.used = used
	return nil
}

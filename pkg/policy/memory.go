package policy

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. A single RWMutex serializes writers
// against readers, so Lookup never observes a half-replaced policy.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]Policy
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]Policy),
		now:      time.Now,
	}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, p Policy) error {
	p, err := Normalize(p)
	if err != nil {
		return err
	}
	p.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	s.policies[p.Sector] = p
	s.mu.Unlock()
	return nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, sector string) (Policy, bool, error) {
	key := NormalizeSector(sector)

	s.mu.RLock()
	p, ok := s.policies[key]
	s.mu.RUnlock()
	return p, ok, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]Policy, error) {
	s.mu.RLock()
	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sector < out[j].Sector })
	return out, nil
}

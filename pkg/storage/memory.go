package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/policy"
)

// MemoryStorage keeps everything in process memory. It is used by tests and
// by the "memory" backend, where state is lost on restart.
type MemoryStorage struct {
	*policy.MemoryStore

	mu       sync.RWMutex
	records  []audit.Record
	counters audit.Counters
	nextID   int64
	now      func() time.Time
}

var (
	_ policy.Store = (*MemoryStorage)(nil)
	_ audit.Ledger = (*MemoryStorage)(nil)
)

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		MemoryStore: policy.NewMemoryStore(),
		records:     make([]audit.Record, 0, 64),
		nextID:      1,
		now:         time.Now,
	}
}

// Record implements audit.Ledger. Append and counter updates happen under
// one lock.
func (m *MemoryStorage) Record(ctx context.Context, e audit.Entry) (audit.Record, error) {
	if !e.Decision.Valid() {
		return audit.Record{}, newError("memory", "record", fmt.Errorf("invalid decision %q", e.Decision))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := audit.Record{
		ID:        m.nextID,
		RequestID: e.RequestID,
		Timestamp: m.now().UTC(),
		Sector:    e.Sector,
		Message:   e.Message,
		Decision:  e.Decision,
		Outcome:   e.Outcome,
		Feedback:  e.Feedback,
	}
	m.nextID++
	m.records = append(m.records, rec)

	m.counters.Total++
	if rec.Decision == audit.DecisionSuccess {
		m.counters.Pass++
	} else {
		m.counters.Block++
	}
	return rec, nil
}

// Recent implements audit.Ledger.
func (m *MemoryStorage) Recent(ctx context.Context, n int) ([]audit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.records) {
		n = len(m.records)
	}
	out := make([]audit.Record, 0, max(n, 0))
	for i := len(m.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// Counters implements audit.Ledger.
func (m *MemoryStorage) Counters(ctx context.Context) (audit.Counters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters, nil
}

// Verify implements audit.Ledger.
func (m *MemoryStorage) Verify(ctx context.Context) (audit.IntegrityReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return audit.IntegrityReport{
		Counters:  m.counters,
		Records:   int64(len(m.records)),
		CheckedAt: m.now().UTC(),
	}, nil
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}

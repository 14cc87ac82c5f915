package sink

import (
	"context"
	"sync"

	"hassws/internal/protocol"
)

const defaultMemoryCapacity = 10_000

// Memory is a capped ring buffer, the dev-only fallback when no database is
// configured: a bounded slice with oldest-evicted-first growth.
type Memory struct {
	mu      sync.Mutex
	cap     int
	records []protocol.EventRecord
	writeAt int
	filled  bool
}

// NewMemory constructs a Memory sink holding at most capacity records. A
// non-positive capacity falls back to defaultMemoryCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &Memory{
		cap:     capacity,
		records: make([]protocol.EventRecord, 0, capacity),
	}
}

// Append records rec, evicting the oldest entry once at capacity.
func (m *Memory) Append(ctx context.Context, rec protocol.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) < m.cap {
		m.records = append(m.records, rec)
		return nil
	}
	m.records[m.writeAt] = rec
	m.writeAt = (m.writeAt + 1) % m.cap
	m.filled = true
	return nil
}

// FetchRecent returns up to limit records, oldest first. A non-positive
// limit returns everything held.
func (m *Memory) FetchRecent(ctx context.Context, limit int) ([]protocol.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.records
	if m.filled {
		ordered = append(append([]protocol.EventRecord(nil), m.records[m.writeAt:]...), m.records[:m.writeAt]...)
	}

	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}
	start := len(ordered) - limit
	out := make([]protocol.EventRecord, limit)
	copy(out, ordered[start:])
	return out, nil
}

// Close is a no-op; Memory owns no external resource.
func (m *Memory) Close() error { return nil }

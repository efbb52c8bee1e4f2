package retryqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps entries for the life of the process.
type Memory struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	order   []uuid.UUID
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[uuid.UUID]*Entry),
		now:     time.Now,
	}
}

func (m *Memory) Enqueue(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	cp := e
	cp.Order = e.Order.Clone()
	m.entries[e.ID] = &cp
	return nil
}

// Pending returns the oldest pending entries first.
func (m *Memory) Pending(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, id := range m.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := m.entries[id]
		if e.Status == StatusPending {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

func (m *Memory) MarkDelivered(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(e *Entry) {
		e.Status = StatusDelivered
	})
}

func (m *Memory) MarkAttempt(_ context.Context, id uuid.UUID, cause error) error {
	return m.update(id, func(e *Entry) {
		e.Attempts++
		e.LastError = errText(cause)
	})
}

func (m *Memory) MarkFailed(_ context.Context, id uuid.UUID, cause error) error {
	return m.update(id, func(e *Entry) {
		e.Attempts++
		e.LastError = errText(cause)
		e.Status = StatusFailed
	})
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, copyEntry(m.entries[id]))
	}
	return out, nil
}

func (m *Memory) update(id uuid.UUID, f func(*Entry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	f(e)
	e.UpdatedAt = m.now().UTC()
	return nil
}

func copyEntry(e *Entry) Entry {
	cp := *e
	cp.Order = e.Order.Clone()
	return cp
}

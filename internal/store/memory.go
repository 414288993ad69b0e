package store

import (
	"context"
	"sync"

	"github.com/stockmaster/stocksync/internal/schema"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	slots map[schema.Slot][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{slots: make(map[schema.Slot][]byte)}
}

// Get implements Store. The returned slice is a copy.
func (m *Memory) Get(_ context.Context, slot schema.Slot) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, slot schema.Slot, value []byte) error {
	return m.PutAll(ctx, map[schema.Slot][]byte{slot: value})
}

// PutAll implements Store.
func (m *Memory) PutAll(_ context.Context, values map[schema.Slot][]byte) error {
	for slot, v := range values {
		if err := checkJSON(slot, v); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for slot, v := range values {
		m.slots[slot] = append([]byte(nil), v...)
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, slots ...schema.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		delete(m.slots, s)
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

// README: In-memory driver directory for tests and the memory storage mode.
package driver

import (
	"context"
	"sort"
	"sync"

	"transfer/internal/types"
)

type MemStore struct {
	mu      sync.RWMutex
	drivers map[types.ID]Driver
}

func NewMemStore(drivers ...Driver) *MemStore {
	m := &MemStore{drivers: make(map[types.ID]Driver, len(drivers))}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

// Put inserts or replaces a driver profile.
func (m *MemStore) Put(d Driver) {
	m.mu.Lock()
	m.drivers[d.ID] = d
	m.mu.Unlock()
}

func (m *MemStore) SetStatus(id types.ID, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drivers[id]; ok {
		d.Status = status
		m.drivers[id] = d
	}
}

func (m *MemStore) GetDriver(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemStore) ListDrivers(_ context.Context) ([]*Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

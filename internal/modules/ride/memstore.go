// README: In-memory ride store with the same compare-and-swap semantics as PgStore.
package ride

import (
	"context"
	"sort"
	"sync"

	"transfer/internal/types"
)

type MemStore struct {
	mu      sync.RWMutex
	rides   map[types.ID]*Ride
	byCode  map[string]types.ID
	history map[types.ID][]Transition
	nextID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		rides:   make(map[types.ID]*Ride),
		byCode:  make(map[string]types.ID),
		history: make(map[types.ID][]Transition),
	}
}

func (m *MemStore) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return ErrBadRequest
	}
	if _, ok := m.byCode[r.AccessCode]; ok {
		return ErrBadRequest
	}
	m.rides[r.ID] = r.Clone()
	m.byCode[r.AccessCode] = r.ID
	return nil
}

func (m *MemStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemStore) GetByAccessCode(_ context.Context, code string) (*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return m.rides[id].Clone(), nil
}

func (m *MemStore) Save(_ context.Context, r *Ride, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := r.Clone()
	next.Version = expectedVersion + 1
	// Immutable after creation.
	next.AccessCode = cur.AccessCode
	next.CreatedAt = cur.CreatedAt
	m.rides[r.ID] = next
	r.Version = next.Version
	return nil
}

func (m *MemStore) ListByStatus(_ context.Context, statuses ...Status) ([]*Ride, error) {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	m.mu.RLock()
	out := make([]*Ride, 0)
	for _, r := range m.rides {
		if want[r.Status] {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) AppendTransition(_ context.Context, t *Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *t
	cp.ID = m.nextID
	m.history[t.RideID] = append(m.history[t.RideID], cp)
	return nil
}

func (m *MemStore) History(_ context.Context, id types.ID) ([]Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.rides[id]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Transition, len(m.history[id]))
	copy(out, m.history[id])
	return out, nil
}

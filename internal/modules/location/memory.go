// README: In-memory location cache and trail for tests and the memory storage mode.
package location

import (
	"context"
	"sort"
	"sync"

	"transfer/internal/types"
)

type MemCache struct {
	mu      sync.RWMutex
	samples map[types.ID]Sample
}

func NewMemCache() *MemCache {
	return &MemCache{samples: make(map[types.ID]Sample)}
}

func (c *MemCache) Put(_ context.Context, s Sample) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.samples[s.RideID]; ok && cur.CapturedAt.After(s.CapturedAt) {
		return false, nil
	}
	c.samples[s.RideID] = s
	return true, nil
}

func (c *MemCache) Get(_ context.Context, rideID types.ID) (*Sample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.samples[rideID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type MemTrail struct {
	mu      sync.RWMutex
	samples map[types.ID][]Sample
}

func NewMemTrail() *MemTrail {
	return &MemTrail{samples: make(map[types.ID][]Sample)}
}

func (t *MemTrail) Append(_ context.Context, s Sample) error {
	t.mu.Lock()
	t.samples[s.RideID] = append(t.samples[s.RideID], s)
	t.mu.Unlock()
	return nil
}

func (t *MemTrail) Samples(_ context.Context, rideID types.ID) ([]Sample, error) {
	t.mu.RLock()
	out := append([]Sample{}, t.samples[rideID]...)
	t.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

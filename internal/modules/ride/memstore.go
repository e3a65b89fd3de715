// README: In-memory ride store for tests and single-process runs.
package ride

import (
	"context"
	"sort"
	"sync"

	"github.com/tejith7/project-bolt/internal/types"
)

type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]Ride
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]Ride)}
}

func (m *MemoryStore) Insert(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rides[r.ID]; exists {
		return nil
	}
	for _, other := range m.rides {
		if other.RiderID == r.RiderID && !other.Status.Terminal() {
			return ErrActiveRide
		}
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, r *Ride, prevVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok {
		return false, nil
	}
	replay := cur.Version == r.Version && cur.Status == r.Status &&
		sameDriver(cur.Driver, r.Driver) && cur.CancelReason == r.CancelReason
	if cur.Version != prevVersion && !replay {
		return false, nil
	}
	m.rides[r.ID] = r.Clone()
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Ride
	for _, r := range m.rides {
		if f.RiderID != "" && r.RiderID != f.RiderID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ActiveByRider(_ context.Context, riderID types.ID) (*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.RiderID == riderID && !r.Status.Terminal() {
			c := r.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

// Events returns the audit trail for one ride in append order.
func (m *MemoryStore) Events(id types.ID) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.RideID == id {
			out = append(out, e)
		}
	}
	return out
}

func sameDriver(a, b *Driver) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// README: In-memory history store for tests and single-process runs.
package history

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[types.ID]ride.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]ride.Ride)}
}

func (m *MemoryStore) Append(_ context.Context, r ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return ErrDuplicate
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return ride.Ride{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Query(_ context.Context, f Filter, s Sort) ([]ride.Ride, error) {
	m.mu.RLock()
	out := make([]ride.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		if matches(r, f) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := compare(a, b, s.Field); c != 0 {
			if s.Order == Asc {
				return c < 0
			}
			return c > 0
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(r ride.Ride, f Filter) bool {
	if f.RiderID != "" && r.RiderID != f.RiderID {
		return false
	}
	if f.DriverID != "" && (r.Driver == nil || r.Driver.ID != f.DriverID) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hit := strings.Contains(strings.ToLower(r.Pickup.Address), q) ||
			strings.Contains(strings.ToLower(r.Destination.Address), q) ||
			(r.Driver != nil && strings.Contains(strings.ToLower(r.Driver.Name), q))
		if !hit {
			return false
		}
	}
	return true
}

func compare(a, b ride.Ride, field SortField) int {
	switch field {
	case SortPrice:
		return cmpInt(a.EstimatedFare.Amount, b.EstimatedFare.Amount)
	case SortDistance:
		switch {
		case a.EstimatedDistance < b.EstimatedDistance:
			return -1
		case a.EstimatedDistance > b.EstimatedDistance:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

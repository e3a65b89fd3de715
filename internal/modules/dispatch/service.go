// README: Dispatch synchronizer: pending list and accept for drivers, monotonic observe for riders.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tejith7/project-bolt/internal/config"
	"github.com/tejith7/project-bolt/internal/geo"
	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/modules/identity"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	List(ctx context.Context, f ride.ListFilter) ([]ride.Ride, error)
}

type Accepter interface {
	Accept(ctx context.Context, cmd ride.AcceptCommand) (ride.Ride, error)
}

type Profiles interface {
	Get(ctx context.Context, id types.ID) (identity.Profile, error)
}

type SnapshotReader interface {
	Get(ctx context.Context, id types.ID) (ride.Ride, bool, error)
}

type Deps struct {
	Rides    RideReader
	Engine   Accepter
	Profiles Profiles
	// Cache is optional; without it every observe reads the store.
	Cache  SnapshotReader
	Config config.DispatchConfig
	Log    logger.Logger
}

type Synchronizer struct {
	rides    RideReader
	engine   Accepter
	profiles Profiles
	cache    SnapshotReader
	cfg      config.DispatchConfig
	log      logger.Logger

	mu   sync.Mutex
	seen map[types.ID]int64 // highest version served per ride
}

func NewSynchronizer(deps Deps) *Synchronizer {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Config.PollInterval <= 0 {
		deps.Config.PollInterval = defaultPollInterval
	}
	return &Synchronizer{
		rides:    deps.Rides,
		engine:   deps.Engine,
		profiles: deps.Profiles,
		cache:    deps.Cache,
		cfg:      deps.Config,
		log:      deps.Log.Action("dispatch"),
		seen:     make(map[types.ID]int64),
	}
}

// ListPending returns rides still waiting for a driver.
func (s *Synchronizer) ListPending(ctx context.Context, q PendingQuery) ([]Offer, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	limit = min(limit, maxPendingLimit)

	f := ride.ListFilter{Statuses: []ride.Status{ride.StatusPending, ride.StatusSearching}}
	if q.Near == nil {
		f.Limit = limit
	}
	rides, err := s.rides.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ride.ErrSyncFailure, err)
	}

	offers := make([]Offer, 0, len(rides))
	if q.Near == nil {
		for _, r := range rides {
			offers = append(offers, Offer{Ride: r})
		}
		return offers, nil
	}

	if !q.Near.Valid() {
		return nil, fmt.Errorf("%w: invalid position", ride.ErrBadRequest)
	}
	radius := q.RadiusKm
	if radius <= 0 {
		radius = s.cfg.RadiusKm
	}
	for _, r := range rides {
		d := geo.HaversineKm(*q.Near, r.Pickup.Point())
		if radius > 0 && d > radius {
			continue
		}
		offers = append(offers, Offer{Ride: r, DistanceKm: geo.RoundTo(d, 2)})
	}
	geo.SortByDistance(offers, func(o Offer) float64 { return o.DistanceKm })
	if len(offers) > limit {
		offers = offers[:limit]
	}
	return offers, nil
}

// Accept claims a ride for driverID. Only registered drivers may accept.
func (s *Synchronizer) Accept(ctx context.Context, rideID, driverID types.ID) (ride.Ride, error) {
	if rideID == "" || driverID == "" {
		return ride.Ride{}, fmt.Errorf("%w: ride and driver required", ride.ErrBadRequest)
	}
	profile, err := s.profiles.Get(ctx, driverID)
	if errors.Is(err, identity.ErrNotFound) {
		return ride.Ride{}, fmt.Errorf("%w: no driver profile", ride.ErrForbidden)
	}
	if err != nil {
		return ride.Ride{}, fmt.Errorf("%w: %w", ride.ErrSyncFailure, err)
	}
	if profile.Role != identity.RoleDriver {
		return ride.Ride{}, fmt.Errorf("%w: %s is not a driver", ride.ErrForbidden, driverID)
	}

	r, err := s.engine.Accept(ctx, ride.AcceptCommand{RideID: rideID, Driver: profile.AsDriver()})
	if err != nil {
		return ride.Ride{}, err
	}
	s.served(r)
	return r, nil
}

// Observe re-reads the whole ride. Calls through the same synchronizer
// never see a version older than one they already returned.
func (s *Synchronizer) Observe(ctx context.Context, id types.ID) (ride.Ride, error) {
	if id == "" {
		return ride.Ride{}, ride.ErrNotFound
	}
	if s.cache != nil {
		r, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Debug("snapshot cache read failed", "ride_id", id, "err", err)
		} else if ok && r.Version >= s.highWater(id) {
			s.served(r)
			return r, nil
		}
	}

	r, err := s.rides.Get(ctx, id)
	if errors.Is(err, ride.ErrNotFound) {
		return ride.Ride{}, err
	}
	if err != nil {
		return ride.Ride{}, fmt.Errorf("%w: %w", ride.ErrSyncFailure, err)
	}
	if r.Version < s.highWater(id) {
		// Read from a lagging replica; the caller retries on the next tick.
		return ride.Ride{}, fmt.Errorf("%w: stale read of %s", ride.ErrSyncFailure, id)
	}
	s.served(*r)
	return *r, nil
}

func (s *Synchronizer) highWater(id types.ID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id]
}

func (s *Synchronizer) served(r ride.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status.Terminal() {
		// Terminal records never change again.
		delete(s.seen, r.ID)
		return
	}
	if r.Version > s.seen[r.ID] {
		s.seen[r.ID] = r.Version
	}
}

// README: Matching service tracks online drivers and picks one for the automatic match.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/tejith7/project-bolt/internal/config"
	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/modules/identity"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

var ErrNotDriver = errors.New("only drivers can go online")

type GeoStore interface {
	AddCandidate(ctx context.Context, c Candidate) error
	RemoveCandidate(ctx context.Context, id types.ID) error
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type Profiles interface {
	Get(ctx context.Context, id types.ID) (identity.Profile, error)
}

type Service struct {
	store    GeoStore
	profiles Profiles
	cfg      config.MatchingConfig
	log      logger.Logger
}

// NewService accepts a nil store; every pick then comes from the simulated roster.
func NewService(store GeoStore, profiles Profiles, cfg config.MatchingConfig, log logger.Logger) *Service {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = defaultRadiusKm
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, profiles: profiles, cfg: cfg, log: log.Action("matching")}
}

// GoOnline makes the driver available for automatic matches near pos.
func (s *Service) GoOnline(ctx context.Context, driverID types.ID, pos types.Point) error {
	if !pos.Valid() {
		return fmt.Errorf("%w: invalid position", ride.ErrBadRequest)
	}
	profile, err := s.profiles.Get(ctx, driverID)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrNotDriver
	}
	if err != nil {
		return err
	}
	if profile.Role != identity.RoleDriver {
		return ErrNotDriver
	}
	if s.store == nil {
		return nil
	}
	return s.store.AddCandidate(ctx, Candidate{ID: driverID, Position: pos, JoinTime: time.Now().UTC()})
}

func (s *Service) GoOffline(ctx context.Context, driverID types.ID) error {
	if s.store == nil {
		return nil
	}
	return s.store.RemoveCandidate(ctx, driverID)
}

// PickDriver chooses a random driver among the closest online ones and takes
// them offline. With nobody online it falls back to the simulated roster.
func (s *Service) PickDriver(ctx context.Context, r ride.Ride) (ride.Driver, error) {
	if s.store != nil {
		nearby, err := s.store.NearbyDrivers(ctx, r.Pickup.Point(), s.cfg.RadiusKm)
		if err != nil {
			s.log.Warn("nearby drivers lookup failed", "ride_id", r.ID, "err", err)
		}
		if len(nearby) > s.cfg.PoolSize {
			nearby = nearby[:s.cfg.PoolSize]
		}
		for _, id := range PickRandomDrivers(nearby, len(nearby)) {
			profile, err := s.profiles.Get(ctx, id)
			if err != nil || profile.Role != identity.RoleDriver {
				s.log.Debug("skipping candidate", "driver_id", id, "err", err)
				continue
			}
			if err := s.store.RemoveCandidate(ctx, id); err != nil {
				s.log.Warn("remove matched candidate failed", "driver_id", id, "err", err)
			}
			s.log.Info("driver picked", "ride_id", r.ID, "driver_id", id)
			return profile.AsDriver(), nil
		}
	}
	return simulatedDriver(), nil
}

func simulatedDriver() ride.Driver {
	d := roster[rand.Intn(len(roster))]
	d.ID = types.ID("sim-" + string(types.NewID())[:8])
	return d
}

// PickRandomDrivers returns up to n distinct drivers from pool in random
// order without touching pool.
func PickRandomDrivers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return []types.ID{}
	}
	n = min(n, len(pool))
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	for i := 0; i < n; i++ {
		j := i + rand.Intn(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:n]
}

// README: Matching store backed by a Redis GEO set of online drivers.
package matching

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/tejith7/project-bolt/internal/types"
)

const driverGeoKey = "matching:drivers"

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) AddCandidate(ctx context.Context, c Candidate) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(c.ID),
		Longitude: c.Position.Lng,
		Latitude:  c.Position.Lat,
	}).Err()
}

func (s *Store) RemoveCandidate(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

// NearbyDrivers lists online drivers within radiusKm of p, nearest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

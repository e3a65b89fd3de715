// README: Identity service reads and registers user profiles; authentication itself is the token verifier's job.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tejith7/project-bolt/internal/types"
)

var (
	ErrNotFound   = errors.New("profile not found")
	ErrBadProfile = errors.New("invalid profile")
)

const defaultRating = 5.0

type Store interface {
	Get(ctx context.Context, id types.ID) (Profile, error)
	Upsert(ctx context.Context, p Profile) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id types.ID) (Profile, error) {
	if id == "" {
		return Profile{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Register creates or updates the caller's profile after sign-up. The rating
// is owned by the service and is never taken from the caller.
func (s *Service) Register(ctx context.Context, p Profile) (Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	if p.ID == "" || p.Name == "" {
		return Profile{}, fmt.Errorf("%w: id and name required", ErrBadProfile)
	}
	if p.Role == "" {
		p.Role = RoleRider
	}
	if p.Role != RoleRider && p.Role != RoleDriver {
		return Profile{}, fmt.Errorf("%w: unknown role %q", ErrBadProfile, p.Role)
	}
	if p.Role == RoleDriver && p.Vehicle.LicensePlate == "" {
		return Profile{}, fmt.Errorf("%w: drivers need a license plate", ErrBadProfile)
	}

	p.Rating = defaultRating
	if existing, err := s.store.Get(ctx, p.ID); err == nil {
		p.Rating = existing.Rating
	} else if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

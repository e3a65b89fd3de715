// README: History service archives terminal rides and answers filtered, sorted queries.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

var (
	ErrNotFound    = errors.New("history record not found")
	ErrNotTerminal = errors.New("only completed or cancelled rides can be archived")
	ErrBadQuery    = errors.New("bad history query")
	// ErrDuplicate is shared with the ride engine so a replayed archive counts as done.
	ErrDuplicate = ride.ErrDuplicate
)

type Store interface {
	Append(ctx context.Context, r ride.Ride) error
	Get(ctx context.Context, id types.ID) (ride.Ride, error)
	Query(ctx context.Context, f Filter, s Sort) ([]ride.Ride, error)
}

type Service struct {
	store Store
	log   logger.Logger
}

func NewService(store Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, log: log.Action("history")}
}

// Append archives an independent copy of a terminal ride.
func (s *Service) Append(ctx context.Context, r ride.Ride) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrBadQuery)
	}
	if !r.Status.Terminal() || r.CompletedAt == nil {
		return fmt.Errorf("%w: %s", ErrNotTerminal, r.Status)
	}
	if err := s.store.Append(ctx, r.Clone()); err != nil {
		return err
	}
	s.log.Debug("ride archived", "ride_id", r.ID, "status", r.Status)
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (ride.Ride, error) {
	return s.store.Get(ctx, id)
}

// Query defaults to newest first.
func (s *Service) Query(ctx context.Context, f Filter, sort Sort) ([]ride.Ride, error) {
	if sort.Field == "" {
		sort.Field = SortDate
	}
	if sort.Order == "" {
		sort.Order = Desc
	}
	switch sort.Field {
	case SortDate, SortPrice, SortDistance:
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrBadQuery, sort.Field)
	}
	if sort.Order != Asc && sort.Order != Desc {
		return nil, fmt.Errorf("%w: unknown order %q", ErrBadQuery, sort.Order)
	}
	if f.Status != "" && !f.Status.Terminal() {
		return nil, fmt.Errorf("%w: history only holds completed or cancelled rides", ErrBadQuery)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, fmt.Errorf("%w: empty date window", ErrBadQuery)
	}
	return s.store.Query(ctx, f, sort)
}

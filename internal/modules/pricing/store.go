// README: Ride-class multiplier overrides backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoRate = errors.New("no stored rate")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, class RideClass) (Rate, error) {
	if s == nil || s.db == nil {
		return Rate{}, ErrNoRate
	}
	var r Rate
	err := s.db.QueryRow(ctx, `
		SELECT class, name, description, multiplier
		FROM ride_classes
		WHERE class = $1`, string(class),
	).Scan(&r.Class, &r.Name, &r.Description, &r.Multiplier)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrNoRate
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}

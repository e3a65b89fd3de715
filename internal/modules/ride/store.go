// README: Ride persistence contract plus the PostgreSQL implementation.
package ride

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tejith7/project-bolt/internal/types"
)

// Store persists whole ride rows. Update is an optimistic write guarded by
// the previous version. Re-applying the identical write (same version, status,
// driver and cancel reason) reports ok; a different write that landed at that
// version does not.
type Store interface {
	Insert(ctx context.Context, r *Ride) error
	Update(ctx context.Context, r *Ride, prevVersion int64) (bool, error)
	Get(ctx context.Context, id types.ID) (*Ride, error)
	List(ctx context.Context, f ListFilter) ([]Ride, error)
	ActiveByRider(ctx context.Context, riderID types.ID) (*Ride, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type ListFilter struct {
	Statuses []Status
	RiderID  types.ID
	Limit    int
}

const activeRiderConstraint = "rides_one_active_per_rider"

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, rider_id, status,
	pickup_address, pickup_lat, pickup_lng,
	dest_address, dest_lat, dest_lng,
	ride_class, est_distance_mi, est_time_min, est_fare_cents, currency,
	driver, cancel_reason, created_at, updated_at, completed_at, version`

func (s *PGStore) Insert(ctx context.Context, r *Ride) error {
	// ON CONFLICT (id) keeps a retried insert idempotent.
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING`,
		string(r.ID), string(r.RiderID), string(r.Status),
		r.Pickup.Address, r.Pickup.Lat, r.Pickup.Lng,
		r.Destination.Address, r.Destination.Lat, r.Destination.Lng,
		string(r.Class), r.EstimatedDistance, r.EstimatedTime, r.EstimatedFare.Amount, r.EstimatedFare.Currency,
		r.Driver, r.CancelReason, r.CreatedAt, r.UpdatedAt, r.CompletedAt, r.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeRiderConstraint {
		return ErrActiveRide
	}
	return err
}

func (s *PGStore) Update(ctx context.Context, r *Ride, prevVersion int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $2,
			driver = $3,
			cancel_reason = $4,
			updated_at = $5,
			completed_at = $6,
			version = $7
		WHERE id = $1
		  AND (version = $8 OR (
			version = $7 AND status = $2
			AND driver IS NOT DISTINCT FROM $3
			AND cancel_reason = $4))`,
		string(r.ID), string(r.Status), r.Driver, r.CancelReason, r.UpdatedAt, r.CompletedAt, r.Version,
		prevVersion,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PGStore) List(ctx context.Context, f ListFilter) ([]Ride, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1::text[]))
		  AND ($2 = '' OR rider_id = $2)
		ORDER BY created_at ASC
		LIMIT $3`,
		statuses, string(f.RiderID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PGStore) ActiveByRider(ctx context.Context, riderID types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE rider_id = $1
		  AND status IN ('pending','searching','matched','pickup','ongoing')
		ORDER BY created_at DESC
		LIMIT 1`, string(riderID),
	)
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	var actorID *string
	if e.ActorID != "" {
		v := string(e.ActorID)
		actorID = &v
	}
	return s.db.QueryRow(ctx, `
		INSERT INTO ride_events (
			ride_id, from_status, to_status, actor_type, actor_id, version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		string(e.RideID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, actorID, e.Version, e.CreatedAt,
	).Scan(&e.ID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRide(row scanner) (*Ride, error) {
	var r Ride
	var driver *Driver
	err := row.Scan(
		&r.ID, &r.RiderID, &r.Status,
		&r.Pickup.Address, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.Destination.Address, &r.Destination.Lat, &r.Destination.Lng,
		&r.Class, &r.EstimatedDistance, &r.EstimatedTime, &r.EstimatedFare.Amount, &r.EstimatedFare.Currency,
		&driver, &r.CancelReason, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.Driver = driver
	return &r, nil
}

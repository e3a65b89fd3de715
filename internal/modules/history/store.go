// README: History store backed by PostgreSQL; the full record is kept as JSONB next to the query columns.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

var sortColumns = map[SortField]string{
	SortDate:     "created_at",
	SortPrice:    "est_fare_cents",
	SortDistance: "est_distance_mi",
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, r ride.Ride) error {
	var driverID types.ID
	var driverName string
	if r.Driver != nil {
		driverID, driverName = r.Driver.ID, r.Driver.Name
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_history (
			id, rider_id, driver_id, status, pickup_address, dest_address, driver_name,
			est_distance_mi, est_fare_cents, created_at, completed_at, record
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(r.ID), string(r.RiderID), string(driverID), string(r.Status),
		r.Pickup.Address, r.Destination.Address, driverName,
		r.EstimatedDistance, r.EstimatedFare.Amount, r.CreatedAt, r.CompletedAt, r,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (ride.Ride, error) {
	var r ride.Ride
	err := s.db.QueryRow(ctx, `SELECT record FROM ride_history WHERE id = $1`, string(id)).Scan(&r)
	if errors.Is(err, pgx.ErrNoRows) {
		return ride.Ride{}, ErrNotFound
	}
	return r, err
}

func (s *PGStore) Query(ctx context.Context, f Filter, srt Sort) ([]ride.Ride, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.RiderID != "" {
		add("rider_id = $%d", string(f.RiderID))
	}
	if f.DriverID != "" {
		add("driver_id = $%d", string(f.DriverID))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(pickup_address ILIKE $%d OR dest_address ILIKE $%d OR driver_name ILIKE $%d)", n, n, n))
	}

	col, ok := sortColumns[srt.Field]
	if !ok {
		col = sortColumns[SortDate]
	}
	dir := "DESC"
	if srt.Order == Asc {
		dir = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	sql := `SELECT record FROM ride_history`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(` ORDER BY %s %s, id ASC LIMIT %d`, col, dir, limit)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ride.Ride
	for rows.Next() {
		var r ride.Ride
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

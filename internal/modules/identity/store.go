// README: Profile stores: PostgreSQL users table and an in-memory map.
package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tejith7/project-bolt/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, role, rating, profile_picture,
		       vehicle_model, vehicle_color, license_plate
		FROM users
		WHERE id = $1`, string(id),
	).Scan(&p.ID, &p.Name, &p.Email, &p.Role, &p.Rating, &p.ProfilePicture,
		&p.Vehicle.Model, &p.Vehicle.Color, &p.Vehicle.LicensePlate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (s *PGStore) Upsert(ctx context.Context, p Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (
			id, name, email, role, rating, profile_picture,
			vehicle_model, vehicle_color, license_plate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			profile_picture = EXCLUDED.profile_picture,
			vehicle_model = EXCLUDED.vehicle_model,
			vehicle_color = EXCLUDED.vehicle_color,
			license_plate = EXCLUDED.license_plate,
			updated_at = NOW()`,
		string(p.ID), p.Name, p.Email, string(p.Role), p.Rating, p.ProfilePicture,
		p.Vehicle.Model, p.Vehicle.Color, p.Vehicle.LicensePlate,
	)
	return err
}

type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[types.ID]Profile
}

func NewMemoryStore(seed ...Profile) *MemoryStore {
	m := &MemoryStore{profiles: make(map[types.ID]Profile)}
	for _, p := range seed {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Upsert(_ context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

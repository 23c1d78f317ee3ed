package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/room"
	"github.com/campuskiosk/kioskhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRoomsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RoomsRepo {
	return &RoomsRepo{pool: pool, prom: prom}
}

func (r *RoomsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *RoomsRepo) List(ctx context.Context) (rooms []room.Room, err error) {
	var rows pgx.Rows

	err = r.observe("rooms.list", func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT id, name, capacity, features, created_at, updated_at
			FROM rooms
			ORDER BY name ASC
		`)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms = make([]room.Room, 0)
	for rows.Next() {
		var rm room.Room
		if err = rows.Scan(&rm.ID, &rm.Name, &rm.Capacity, &rm.Features, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, rm)
	}

	return rooms, rows.Err()
}

func (r *RoomsRepo) GetByID(ctx context.Context, id string) (room.Room, error) {
	var rm room.Room
	var err error

	err = r.observe("rooms.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, name, capacity, features, created_at, updated_at
			FROM rooms
			WHERE id = $1
		`, id).Scan(&rm.ID, &rm.Name, &rm.Capacity, &rm.Features, &rm.CreatedAt, &rm.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, err
	}
	return rm, nil
}

func (r *RoomsRepo) Create(ctx context.Context, req room.CreateRequest) (room.Room, error) {
	now := time.Now().UTC()

	rm := room.Room{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Capacity:  req.Capacity,
		Features:  req.Features,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rm.Features == nil {
		rm.Features = []string{}
	}

	err := r.observe("rooms.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO rooms (id, name, capacity, features, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, rm.ID, rm.Name, rm.Capacity, rm.Features, rm.CreatedAt, rm.UpdatedAt)
		return err
	})
	if err != nil {
		return room.Room{}, err
	}

	return rm, nil
}

func (r *RoomsRepo) Update(ctx context.Context, id string, req room.UpdateRequest) (room.Room, error) {
	features := req.Features
	if features == nil {
		features = []string{}
	}

	var rm room.Room
	var err error

	err = r.observe("rooms.update", func() error {
		return r.pool.QueryRow(ctx, `
			UPDATE rooms
			SET name = $2, capacity = $3, features = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING id, name, capacity, features, created_at, updated_at
		`, id, req.Name, req.Capacity, features).
			Scan(&rm.ID, &rm.Name, &rm.Capacity, &rm.Features, &rm.CreatedAt, &rm.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, err
	}
	return rm, nil
}

func (r *RoomsRepo) Delete(ctx context.Context, id string) error {
	return r.observe("rooms.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return room.ErrNotFound
		}
		return nil
	})
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/reservation"
	"github.com/campuskiosk/kioskhub/internal/domain/room"
	"github.com/campuskiosk/kioskhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewReservationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ReservationsRepo {
	return &ReservationsRepo{pool: pool, prom: prom}
}

func (repo *ReservationsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *ReservationsRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return repo.pool.BeginTx(ctx, pgx.TxOptions{})
}

const reservationColumns = `id, room_id, date, start_time, end_time, user_id, full_name, email, cancelled, cancel_reason, created_at`

func scanReservation(row pgx.Row) (reservation.Reservation, error) {
	var res reservation.Reservation
	err := row.Scan(
		&res.ID, &res.RoomID, &res.Date, &res.StartTime, &res.EndTime,
		&res.UserID, &res.FullName, &res.Email,
		&res.Cancelled, &res.CancelReason, &res.CreatedAt,
	)
	return res, err
}

// CreateTx books a room inside the caller's transaction. The room row is
// locked first, which serializes all bookings for that room: two concurrent
// requests for the same slot cannot both pass the conflict check. Candidate
// rows cover the proposed date plus one day either side: the previous day
// because an overnight row there spills into the proposed morning, and the
// next day because a proposed overnight booking spills into it. Normalization
// inside FindConflict discards candidates that do not really overlap.
func (repo *ReservationsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req reservation.CreateRequest) (res reservation.Reservation, err error) {
	date, err := reservation.ParseDate(req.Date)
	if err != nil {
		return
	}

	proposed, err := reservation.Normalize(date, req.StartTime, req.EndTime)
	if err != nil {
		return
	}

	var roomID string
	err = repo.observe("reservations.create_tx.room_lock", func() error {
		return tx.QueryRow(ctx,
			`SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, req.RoomID,
		).Scan(&roomID)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = room.ErrNotFound
		}
		return
	}

	var rows pgx.Rows
	err = repo.observe("reservations.create_tx.candidates", func() error {
		rows, err = tx.Query(ctx, `
			SELECT `+reservationColumns+`
			FROM room_reservations
			WHERE room_id = $1
			  AND NOT cancelled
			  AND date BETWEEN $2::date - 1 AND $2::date + 1
		`, req.RoomID, date)
		return err
	})
	if err != nil {
		return
	}
	defer rows.Close()

	var existing []reservation.Reservation
	for rows.Next() {
		var row reservation.Reservation
		if row, err = scanReservation(rows); err != nil {
			return
		}
		existing = append(existing, row)
	}
	if err = rows.Err(); err != nil {
		return
	}

	if blocking, found := reservation.FindConflict(proposed, existing); found {
		err = &reservation.ConflictError{Existing: blocking}
		return
	}

	res = reservation.Reservation{
		ID:        uuid.NewString(),
		RoomID:    req.RoomID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		UserID:    req.UserID,
		FullName:  req.FullName,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}

	err = repo.observe("reservations.create_tx.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO room_reservations
				(id, room_id, date, start_time, end_time, user_id, full_name, email, cancelled, cancel_reason, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,NULL,$9)
		`, res.ID, res.RoomID, res.Date, res.StartTime, res.EndTime,
			res.UserID, res.FullName, res.Email, res.CreatedAt)
		return e
	})

	return
}

// Create wraps CreateTx in its own transaction for callers that have no
// other writes to attach.
func (repo *ReservationsRepo) Create(ctx context.Context, req reservation.CreateRequest) (res reservation.Reservation, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err = repo.CreateTx(ctx, tx, req)
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	return
}

func (repo *ReservationsRepo) GetByID(ctx context.Context, id string) (reservation.Reservation, error) {
	var res reservation.Reservation
	var err error

	err = repo.observe("reservations.get_by_id", func() error {
		res, err = scanReservation(repo.pool.QueryRow(ctx,
			`SELECT `+reservationColumns+` FROM room_reservations WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reservation.Reservation{}, reservation.ErrNotFound
		}
		return reservation.Reservation{}, err
	}
	return res, nil
}

// Cancel marks the reservation cancelled. Cancellation is terminal: a second
// cancel is reported as ErrAlreadyCancelled, never as success.
func (repo *ReservationsRepo) Cancel(ctx context.Context, id, reason string) (reservation.Reservation, error) {
	var res reservation.Reservation
	var err error

	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}

	err = repo.observe("reservations.cancel", func() error {
		res, err = scanReservation(repo.pool.QueryRow(ctx, `
			UPDATE room_reservations
			SET cancelled = true, cancel_reason = $2
			WHERE id = $1 AND NOT cancelled
			RETURNING `+reservationColumns,
			id, reasonArg))
		return err
	})

	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return reservation.Reservation{}, err
	}

	// zero rows: distinguish a missing row from one already cancelled
	var cancelled bool
	checkErr := repo.pool.QueryRow(ctx,
		`SELECT cancelled FROM room_reservations WHERE id = $1`, id).Scan(&cancelled)
	if checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return reservation.Reservation{}, reservation.ErrNotFound
		}
		return reservation.Reservation{}, checkErr
	}

	return reservation.Reservation{}, reservation.ErrAlreadyCancelled
}

func (repo *ReservationsRepo) ListByUser(ctx context.Context, userID string) ([]reservation.Reservation, error) {
	return repo.list(ctx, "reservations.list_by_user", `
		SELECT `+reservationColumns+`
		FROM room_reservations
		WHERE user_id = $1
		ORDER BY date ASC, start_time ASC
	`, userID)
}

// ListByDate returns non-cancelled rows for the day plus overnight rows from
// the previous day, the same candidate set the conflict check uses.
func (repo *ReservationsRepo) ListByDate(ctx context.Context, date time.Time) ([]reservation.Reservation, error) {
	return repo.list(ctx, "reservations.list_by_date", `
		SELECT `+reservationColumns+`
		FROM room_reservations
		WHERE NOT cancelled
		  AND date IN ($1::date, $1::date - 1)
		ORDER BY date ASC, start_time ASC
	`, date)
}

func (repo *ReservationsRepo) list(ctx context.Context, op, query string, args ...any) (items []reservation.Reservation, err error) {
	var rows pgx.Rows

	err = repo.observe(op, func() error {
		rows, err = repo.pool.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items = make([]reservation.Reservation, 0)
	for rows.Next() {
		var res reservation.Reservation
		if res, err = scanReservation(rows); err != nil {
			return nil, err
		}
		items = append(items, res)
	}

	return items, rows.Err()
}

// BulkCancel cancels every listed reservation that is still active and
// reports how many rows actually changed. Rows already cancelled or missing
// are skipped, not errors; staff use this to clear a whole day.
func (repo *ReservationsRepo) BulkCancel(ctx context.Context, ids []string, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}

	var affected int
	err := repo.observe("reservations.bulk_cancel", func() error {
		tag, err := repo.pool.Exec(ctx, `
			UPDATE room_reservations
			SET cancelled = true, cancel_reason = $2
			WHERE id = ANY($1) AND NOT cancelled
		`, ids, reasonArg)
		if err != nil {
			return err
		}
		affected = int(tag.RowsAffected())
		return nil
	})

	return affected, err
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobsRepo is the Postgres-backed work queue. Jobs are claimed with
// FOR UPDATE SKIP LOCKED so multiple worker processes never grab the
// same row.
type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (repo *JobsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

const jobColumns = `id, type, payload, status, attempts, max_attempts,
	run_at, locked_at, locked_by, last_error, idempotency_key,
	created_at, updated_at`

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &status, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LockedBy, &j.LastError, &j.IdempotencyKey,
		&j.CreatedAt, &j.UpdatedAt,
	)
	j.Status = job.Status(status)
	return j, err
}

func (repo *JobsRepo) insert(ctx context.Context, exec func(context.Context, string, ...any) (int64, error), j job.Job) error {
	_, err := exec(ctx, `
		INSERT INTO jobs
			(id, type, payload, status, attempts, max_attempts,
			 run_at, locked_at, locked_by, last_error, idempotency_key,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxAttempts,
		j.RunAt, j.LockedAt, j.LockedBy, j.LastError, j.IdempotencyKey,
		j.CreatedAt, j.UpdatedAt)
	return err
}

func (repo *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	err := repo.observe("jobs.create", func() error {
		return repo.insert(ctx, func(ctx context.Context, sql string, args ...any) (int64, error) {
			tag, e := repo.pool.Exec(ctx, sql, args...)
			return tag.RowsAffected(), e
		}, j)
	})
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// CreateTx enqueues inside the caller's transaction so the job becomes
// visible only if the surrounding write commits.
func (repo *JobsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	err := repo.observe("jobs.create_tx", func() error {
		return repo.insert(ctx, func(ctx context.Context, sql string, args ...any) (int64, error) {
			tag, e := tx.Exec(ctx, sql, args...)
			return tag.RowsAffected(), e
		}, j)
	})
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// ClaimNext atomically picks the oldest runnable job and flips it to
// processing. ErrNotFound means the queue is empty right now.
func (repo *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job
	var err error

	err = repo.observe("jobs.claim_next", func() error {
		j, err = scanJob(repo.pool.QueryRow(ctx, `
			WITH next AS (
				SELECT id
				FROM jobs
				WHERE status = 'pending'
				  AND run_at <= NOW()
				  AND attempts < max_attempts
				ORDER BY run_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE jobs
			SET status = 'processing',
			    locked_at = NOW(),
			    locked_by = $1,
			    updated_at = NOW()
			WHERE id = (SELECT id FROM next)
			RETURNING `+jobColumns,
			workerID))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, err
	}
	return j, nil
}

func (repo *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return repo.terminal(ctx, "jobs.mark_done", `
		UPDATE jobs
		SET status = 'done', locked_at = NULL, locked_by = NULL,
		    last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
}

func (repo *JobsRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return repo.terminal(ctx, "jobs.mark_failed", `
		UPDATE jobs
		SET status = 'failed', locked_at = NULL, locked_by = NULL,
		    last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
}

// Reschedule puts a job back on the queue for a later attempt, recording the
// error that caused the retry.
func (repo *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return repo.terminal(ctx, "jobs.reschedule", `
		UPDATE jobs
		SET status = 'pending', attempts = attempts + 1,
		    run_at = $2, locked_at = NULL, locked_by = NULL,
		    last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, runAt, errMsg)
}

func (repo *JobsRepo) terminal(ctx context.Context, op, query string, args ...any) error {
	var affected int64
	err := repo.observe(op, func() error {
		tag, e := repo.pool.Exec(ctx, query, args...)
		if e != nil {
			return e
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (repo *JobsRepo) GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error) {
	var j job.Job
	var err error

	err = repo.observe("jobs.get_by_idempotency_key", func() error {
		j, err = scanJob(repo.pool.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = $1`, key))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, err
	}
	return j, nil
}

// ErrJobNotRetryable is returned when a retry targets a job that is not in
// the failed state.
var ErrJobNotRetryable = errors.New("job is not failed")

func (repo *JobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	var j job.Job
	var err error

	err = repo.observe("jobs.get_by_id", func() error {
		j, err = scanJob(repo.pool.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, err
	}
	return j, nil
}

// List returns recent jobs, newest first, optionally filtered by status.
func (repo *JobsRepo) List(ctx context.Context, status *string, limit int) (items []job.Job, err error) {
	var rows pgx.Rows

	err = repo.observe("jobs.list", func() error {
		rows, err = repo.pool.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE ($1::text IS NULL OR status = $1)
			ORDER BY updated_at DESC, id DESC
			LIMIT $2
		`, status, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items = []job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	return items, rows.Err()
}

// Retry puts a failed job back on the queue with its attempts reset.
func (repo *JobsRepo) Retry(ctx context.Context, id string) error {
	var affected int64
	err := repo.observe("jobs.retry", func() error {
		tag, e := repo.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending', attempts = 0, run_at = NOW(),
			    locked_at = NULL, locked_by = NULL, last_error = NULL,
			    updated_at = NOW()
			WHERE id = $1 AND status = 'failed'
		`, id)
		if e != nil {
			return e
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, e := repo.GetByID(ctx, id); e != nil {
			return e
		}
		return ErrJobNotRetryable
	}
	return nil
}

// RetryManyFailed requeues up to limit failed jobs, oldest failures first.
func (repo *JobsRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	var requeued int64
	err := repo.observe("jobs.retry_many_failed", func() error {
		tag, e := repo.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending', attempts = 0, run_at = NOW(),
			    locked_at = NULL, locked_by = NULL, last_error = NULL,
			    updated_at = NOW()
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'failed'
				ORDER BY updated_at ASC
				LIMIT $1
			)
		`, limit)
		if e != nil {
			return e
		}
		requeued = tag.RowsAffected()
		return nil
	})
	return requeued, err
}

// RequeueStaleProcessing frees jobs whose worker died mid-run: anything
// locked longer than lockTTL goes back to pending.
func (repo *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var requeued int64
	err := repo.observe("jobs.requeue_stale", func() error {
		tag, e := repo.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending', locked_at = NULL, locked_by = NULL,
			    updated_at = NOW()
			WHERE status = 'processing'
			  AND locked_at IS NOT NULL
			  AND locked_at < NOW() - ($1 * INTERVAL '1 second')
		`, secs)
		if e != nil {
			return e
		}
		requeued = tag.RowsAffected()
		return nil
	})
	return requeued, err
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/delivery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveriesRepo is the exactly-once ledger for outbound email. Each send is
// keyed by (kind, subject_id) with a unique constraint, so retried jobs and
// competing workers converge on a single sent row per notification.
type DeliveriesRepo struct {
	pool *pgxpool.Pool
}

func NewDeliveriesRepo(pool *pgxpool.Pool) *DeliveriesRepo {
	return &DeliveriesRepo{pool: pool}
}

// TryStart claims the delivery for this worker. It inserts a sending row,
// or atomically flips a failed row back to sending for retry. When the row
// is already sent or another worker holds it, the matching sentinel comes
// back and the caller must not send.
func (r *DeliveriesRepo) TryStart(ctx context.Context, kind, subjectID, jobID, recipient string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries
			(kind, subject_id, job_id, recipient, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'sending', NOW(), NOW())
	`, kind, subjectID, jobID, recipient)
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	tag, uErr := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sending',
		    job_id = $3,
		    recipient = $4,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE kind = $1 AND subject_id = $2 AND status = 'failed'
	`, kind, subjectID, jobID, recipient)
	if uErr != nil {
		return uErr
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	var sentAt *time.Time
	qErr := r.pool.QueryRow(ctx, `
		SELECT status, sent_at
		FROM notification_deliveries
		WHERE kind = $1 AND subject_id = $2
	`, kind, subjectID).Scan(&status, &sentAt)
	if qErr != nil {
		if errors.Is(qErr, pgx.ErrNoRows) {
			// row vanished between statements; caller may retry
			return nil
		}
		return qErr
	}

	if sentAt != nil || status == "sent" {
		return delivery.ErrAlreadySent
	}
	return delivery.ErrInProgress
}

func (r *DeliveriesRepo) MarkSent(ctx context.Context, kind, subjectID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sent',
		    sent_at = NOW(),
		    last_error = NULL,
		    updated_at = NOW()
		WHERE kind = $1 AND subject_id = $2
	`, kind, subjectID)
	return err
}

func (r *DeliveriesRepo) MarkFailed(ctx context.Context, kind, subjectID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'failed',
		    last_error = $3,
		    updated_at = NOW()
		WHERE kind = $1 AND subject_id = $2
	`, kind, subjectID, errMsg)
	return err
}

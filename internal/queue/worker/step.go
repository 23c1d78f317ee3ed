package worker

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/jobs"
)

// ProcessOne claims and runs a single job. The bool reports whether a job
// was available at all, letting the caller drain until the queue is empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	w.logger.Info("claimed job", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1)

	start := time.Now()
	err = w.handler.Handle(ctx, j)
	if w.prom != nil {
		w.prom.ObserveJob(j.Type, time.Since(start), err == nil)
	}

	if err != nil {
		w.handleFailure(ctx, j, err)
		return true, nil
	}

	if err := w.repo.MarkDone(ctx, j.ID); err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	return true, nil
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) {
	// malformed payloads never succeed on retry
	if errors.Is(cause, jobs.ErrInvalidJobPayload) || errors.Is(cause, jobs.ErrInvalidJobType) {
		w.logger.Error("job payload rejected", "job_id", j.ID, "type", j.Type, "error", cause)
		if err := w.repo.MarkFailed(ctx, j.ID, cause.Error()); err != nil {
			w.logger.Error("mark failed error", "job_id", j.ID, "error", err)
		}
		return
	}

	// Attempts counts completed runs; this one has not been recorded yet.
	if j.Attempts+1 >= j.MaxAttempts {
		w.logger.Error("job failed permanently",
			"job_id", j.ID, "type", j.Type, "attempts", j.Attempts+1, "error", cause)
		if err := w.repo.MarkFailed(ctx, j.ID, cause.Error()); err != nil {
			w.logger.Error("mark failed error", "job_id", j.ID, "error", err)
		}
		return
	}

	delay := ExponentialBackoff(j.Attempts)
	w.logger.Warn("job failed, rescheduling",
		"job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1, "retry_in", delay, "error", cause)

	if err := w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), cause.Error()); err != nil {
		w.logger.Error("reschedule error", "job_id", j.ID, "error", err)
	}
}

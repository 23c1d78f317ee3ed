package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/jobs"
)

type fakeJobsRepo struct {
	claimNextFn  func(ctx context.Context, workerID string) (job.Job, error)
	markDoneFn   func(ctx context.Context, id string) error
	markFailedFn func(ctx context.Context, id, errMsg string) error
	rescheduleFn func(ctx context.Context, id string, runAt time.Time, errMsg string) error
	requeueFn    func(ctx context.Context, ttl time.Duration) (int64, error)
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	return f.claimNextFn(ctx, workerID)
}
func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	return f.markDoneFn(ctx, id)
}
func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return f.markFailedFn(ctx, id, errMsg)
}
func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return f.rescheduleFn(ctx, id, runAt, errMsg)
}
func (f *fakeJobsRepo) RequeueStaleProcessing(ctx context.Context, ttl time.Duration) (int64, error) {
	if f.requeueFn != nil {
		return f.requeueFn(ctx, ttl)
	}
	return 0, nil
}

type handlerFunc func(ctx context.Context, j job.Job) error

func (h handlerFunc) Handle(ctx context.Context, j job.Job) error { return h(ctx, j) }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestProcessOneEmptyQueue(t *testing.T) {
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return job.Job{}, job.ErrNotFound
		},
	}
	w := New(Config{}, repo, handlerFunc(func(ctx context.Context, j job.Job) error {
		t.Fatal("handler should not run")
		return nil
	}), discardLogger(), nil)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatal("expected no job processed")
	}
}

func TestProcessOneSuccessMarksDone(t *testing.T) {
	var doneID string
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return job.Job{ID: "j1", Type: "reservation.confirmation", MaxAttempts: 5}, nil
		},
		markDoneFn: func(ctx context.Context, id string) error {
			doneID = id
			return nil
		},
	}
	w := New(Config{}, repo, handlerFunc(func(ctx context.Context, j job.Job) error {
		return nil
	}), discardLogger(), nil)

	processed, err := w.ProcessOne(context.Background())
	if err != nil || !processed {
		t.Fatalf("processed=%v err=%v", processed, err)
	}
	if doneID != "j1" {
		t.Fatalf("expected j1 marked done, got %q", doneID)
	}
}

func TestProcessOneFailureReschedulesWithBackoff(t *testing.T) {
	var rescheduled bool
	var runAt time.Time
	before := time.Now().UTC()

	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return job.Job{ID: "j1", Type: "supply.receipt", Attempts: 1, MaxAttempts: 5}, nil
		},
		markDoneFn: func(ctx context.Context, id string) error {
			t.Fatal("should not mark done")
			return nil
		},
		rescheduleFn: func(ctx context.Context, id string, at time.Time, errMsg string) error {
			rescheduled = true
			runAt = at
			return nil
		},
	}
	w := New(Config{}, repo, handlerFunc(func(ctx context.Context, j job.Job) error {
		return errors.New("relay down")
	}), discardLogger(), nil)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rescheduled {
		t.Fatal("expected reschedule")
	}
	// attempt 1 backs off at least 4s
	if runAt.Before(before.Add(4 * time.Second)) {
		t.Fatalf("backoff too short: %v", runAt.Sub(before))
	}
}

func TestProcessOneExhaustedAttemptsFails(t *testing.T) {
	var failed bool
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return job.Job{ID: "j1", Type: "supply.receipt", Attempts: 4, MaxAttempts: 5}, nil
		},
		markFailedFn: func(ctx context.Context, id, errMsg string) error {
			failed = true
			return nil
		},
		rescheduleFn: func(ctx context.Context, id string, at time.Time, errMsg string) error {
			t.Fatal("should not reschedule at max attempts")
			return nil
		},
	}
	w := New(Config{}, repo, handlerFunc(func(ctx context.Context, j job.Job) error {
		return errors.New("still down")
	}), discardLogger(), nil)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !failed {
		t.Fatal("expected permanent failure")
	}
}

func TestProcessOneBadPayloadFailsImmediately(t *testing.T) {
	var failed bool
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return job.Job{ID: "j1", Type: "auth.reset_code", Attempts: 0, MaxAttempts: 10}, nil
		},
		markFailedFn: func(ctx context.Context, id, errMsg string) error {
			failed = true
			return nil
		},
		rescheduleFn: func(ctx context.Context, id string, at time.Time, errMsg string) error {
			t.Fatal("malformed payload must not retry")
			return nil
		},
	}
	w := New(Config{}, repo, handlerFunc(func(ctx context.Context, j job.Job) error {
		return jobs.ErrInvalidJobPayload
	}), discardLogger(), nil)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !failed {
		t.Fatal("expected immediate failure")
	}
}

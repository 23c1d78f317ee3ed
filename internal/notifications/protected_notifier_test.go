package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuskiosk/kioskhub/internal/notifications"
)

type fakeNotifier struct {
	sendFn func(ctx context.Context, msg notifications.Message) error
	calls  int
}

func (f *fakeNotifier) Send(ctx context.Context, msg notifications.Message) error {
	f.calls++
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return nil
}

func msg() notifications.Message {
	return notifications.Message{To: "sam@uta.edu", Subject: "test", Body: "test"}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	relayDown := errors.New("relay down")
	inner := &fakeNotifier{
		sendFn: func(ctx context.Context, m notifications.Message) error { return relayDown },
	}

	n := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		FailureThreshold: 3,
		Cooldown:         time.Hour,
	})

	for i := 0; i < 3; i++ {
		if err := n.Send(context.Background(), msg()); !errors.Is(err, relayDown) {
			t.Fatalf("send %d: err = %v, want relay error", i+1, err)
		}
	}

	// threshold reached: next call must be rejected without touching the relay
	if err := n.Send(context.Background(), msg()); !errors.Is(err, notifications.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if inner.calls != 3 {
		t.Fatalf("relay called %d times, want 3", inner.calls)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	relayDown := errors.New("relay down")
	fail := true
	inner := &fakeNotifier{
		sendFn: func(ctx context.Context, m notifications.Message) error {
			if fail {
				return relayDown
			}
			return nil
		},
	}

	n := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		FailureThreshold: 3,
	})

	_ = n.Send(context.Background(), msg())
	_ = n.Send(context.Background(), msg())

	fail = false
	if err := n.Send(context.Background(), msg()); err != nil {
		t.Fatalf("send after recovery: %v", err)
	}

	// two fresh failures must not trip a threshold of three
	fail = true
	_ = n.Send(context.Background(), msg())
	if err := n.Send(context.Background(), msg()); errors.Is(err, notifications.ErrCircuitOpen) {
		t.Fatalf("breaker opened early after an intervening success")
	}
}

func TestBreakerHalfOpenTrialClosesOnSuccess(t *testing.T) {
	relayDown := errors.New("relay down")
	fail := true
	inner := &fakeNotifier{
		sendFn: func(ctx context.Context, m notifications.Message) error {
			if fail {
				return relayDown
			}
			return nil
		},
	}

	n := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	_ = n.Send(context.Background(), msg())
	if err := n.Send(context.Background(), msg()); !errors.Is(err, notifications.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// cooldown elapsed: one trial call goes through and closes the breaker
	fail = false
	if err := n.Send(context.Background(), msg()); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if err := n.Send(context.Background(), msg()); err != nil {
		t.Fatalf("breaker did not close after successful trial: %v", err)
	}
}

func TestBreakerHalfOpenTrialReopensOnFailure(t *testing.T) {
	relayDown := errors.New("relay down")
	inner := &fakeNotifier{
		sendFn: func(ctx context.Context, m notifications.Message) error { return relayDown },
	}

	n := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	_ = n.Send(context.Background(), msg())

	time.Sleep(20 * time.Millisecond)

	// failed trial reopens immediately
	if err := n.Send(context.Background(), msg()); !errors.Is(err, relayDown) {
		t.Fatalf("trial call err = %v, want relay error", err)
	}
	if err := n.Send(context.Background(), msg()); !errors.Is(err, notifications.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after failed trial", err)
	}
}

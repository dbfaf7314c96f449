package retrier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunSucceedsAfterTransientFailures(t *testing.T) {
	r, err := New(5, time.Millisecond, 10*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	calls := 0
	err = r.Run(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	r, err := New(3, time.Millisecond, 10*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sentinel := errors.New("still down")
	calls := 0
	err = r.Run(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	r, err := New(10, 50*time.Millisecond, time.Second, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.Run(ctx, func() error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0, time.Millisecond, time.Second, 0); !errors.Is(err, ErrInvalidMaxAttempts) {
		t.Fatalf("expected ErrInvalidMaxAttempts, got %v", err)
	}
	if _, err := New(1, 0, time.Second, 0); !errors.Is(err, ErrInvalidBaseDelay) {
		t.Fatalf("expected ErrInvalidBaseDelay, got %v", err)
	}
	if _, err := New(1, time.Millisecond, time.Second, 2); !errors.Is(err, ErrInvalidJitter) {
		t.Fatalf("expected ErrInvalidJitter, got %v", err)
	}
}

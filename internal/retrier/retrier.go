// Package retrier provides a small exponential-backoff runner, used to
// establish store connections at startup without giving up on the
// first transient dial failure.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	// ErrInvalidMaxAttempts is returned when the max attempts parameter is invalid.
	ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")
	// ErrInvalidBaseDelay is returned when the base delay parameter is invalid.
	ErrInvalidBaseDelay = errors.New("base delay must be at least 1ms")
	// ErrInvalidJitter is returned when the jitter parameter is invalid.
	ErrInvalidJitter = errors.New("jitter must be between 0 and 1")
)

// Retrier executes a function with exponential backoff between
// attempts. Jitter spreads retries out to avoid reconnect storms.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
}

// New creates a Retrier. The delay doubles after each attempt, capped
// at maxDelay, with up to jitter*delay of randomness added.
func New(maxAttempts int, baseDelay, maxDelay time.Duration, jitter float64) (*Retrier, error) {
	if maxAttempts < 1 {
		return nil, ErrInvalidMaxAttempts
	}
	if baseDelay < time.Millisecond {
		return nil, ErrInvalidBaseDelay
	}
	if jitter < 0 || jitter > 1 {
		return nil, ErrInvalidJitter
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		jitter:      jitter,
	}, nil
}

// Run calls fn until it succeeds, the attempts are exhausted, or ctx is
// canceled.
func (r *Retrier) Run(ctx context.Context, fn func() error) error {
	var err error
	delay := r.baseDelay

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == r.maxAttempts-1 {
			break
		}

		wait := delay + time.Duration(rand.Float64()*r.jitter*float64(delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}

	return fmt.Errorf("max retry attempts reached: %w", err)
}

// Package pool implements the fixed-size store connection pool.
//
// Acquisition is round-robin over the slots: an atomic counter picks
// the target slot before its availability is known, and the caller
// then blocks on that specific slot's lock. A caller can therefore
// stall behind a slow operation on "its" slot while other slots sit
// idle. That head-of-line blocking is a deliberate simplicity
// trade-off, not a scheduler, and the tests pin it down.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"goflare.io/hearth/internal/retrier"
	"goflare.io/hearth/internal/store"
)

var (
	// ErrInvalidSize is returned when the requested pool size is not positive.
	ErrInvalidSize = errors.New("pool size must be at least 1")
)

type slot struct {
	mu   sync.Mutex
	conn store.Conn
}

// Lease is a temporary exclusive right to use one pooled connection.
// Release must be called on every exit path; it is idempotent.
type Lease struct {
	slot *slot
	once sync.Once
}

// Conn returns the leased connection. It must not be used after Release.
func (l *Lease) Conn() store.Conn {
	return l.slot.conn
}

// Release returns the connection to the pool.
func (l *Lease) Release() {
	l.once.Do(l.slot.mu.Unlock)
}

// Pool is a fixed set of store connections, each guarded by its own
// lock. There is no global lock: operations on different slots proceed
// fully in parallel.
type Pool struct {
	slots  []*slot
	next   atomic.Uint64
	logger *zap.Logger
}

// New dials size connections, retrying transient dial failures. If any
// slot cannot be established the already-dialed connections are closed
// and the error is returned.
func New(ctx context.Context, dialer store.Dialer, size int, r *retrier.Retrier, logger *zap.Logger) (*Pool, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	slots := make([]*slot, size)
	for i := range slots {
		var conn store.Conn
		dial := func() error {
			c, err := dialer.Dial(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}

		var err error
		if r != nil {
			err = r.Run(ctx, dial)
		} else {
			err = dial()
		}
		if err != nil {
			for j := 0; j < i; j++ {
				if cerr := slots[j].conn.Close(); cerr != nil {
					logger.Warn("failed to close store connection during cleanup",
						zap.Int("slot", j), zap.Error(cerr))
				}
			}
			return nil, fmt.Errorf("failed to dial store connection %d: %w", i, err)
		}

		slots[i] = &slot{conn: conn}
		logger.Debug("store connection ready", zap.Int("slot", i))
	}

	return &Pool{slots: slots, logger: logger}, nil
}

// Acquire picks the next slot in round-robin order and blocks until
// that slot's lock is obtainable. Acquisition never fails.
func (p *Pool) Acquire() *Lease {
	idx := (p.next.Inc() - 1) % uint64(len(p.slots))
	s := p.slots[idx]
	s.mu.Lock()
	return &Lease{slot: s}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Close waits for each slot to become free, then closes its
// connection. The pool must not be used afterwards.
func (p *Pool) Close() error {
	var errs []error
	for i, s := range p.slots {
		s.mu.Lock()
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store connection %d: %w", i, err))
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

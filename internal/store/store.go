// Package store defines the durable-store contract the coordinator
// consumes and provides the Redis-backed driver plus a circuit-breaker
// decorator.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports that the key is absent from the durable store.
	// It is an expected outcome, not an I/O failure.
	ErrNotFound = errors.New("store: key not found")
)

// Conn is a single handle to the durable store. A Conn is not safe for
// concurrent use; the connection pool guards each one with its own lock
// and leases it to one caller at a time.
type Conn interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put inserts or overwrites the value (upsert semantics).
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the key, returning ErrNotFound if it was absent.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Dialer establishes store connections. The pool calls it once per
// slot at startup.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

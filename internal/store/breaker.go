package store

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
)

// WithBreaker wraps conn in a circuit breaker so a failing store sheds
// load quickly instead of holding every caller on a dead connection.
// ErrNotFound is an expected outcome and never counts as a failure.
// Breaker rejections surface to the caller as store errors.
func WithBreaker(conn Conn, settings gobreaker.Settings) Conn {
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		}
	}
	return &breakerConn{
		conn: conn,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// DialerWithBreaker returns a Dialer whose connections are each
// wrapped in their own circuit breaker, so one bad connection tripping
// does not shed load from the healthy ones.
func DialerWithBreaker(dialer Dialer, settings gobreaker.Settings) Dialer {
	return &breakerDialer{dialer: dialer, settings: settings}
}

type breakerDialer struct {
	dialer   Dialer
	settings gobreaker.Settings
}

func (d *breakerDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := d.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return WithBreaker(conn, d.settings), nil
}

type breakerConn struct {
	conn Conn
	cb   *gobreaker.CircuitBreaker
}

func (b *breakerConn) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.cb.Execute(func() (any, error) {
		return b.conn.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

func (b *breakerConn) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.conn.Put(ctx, key, value)
	})
	return err
}

func (b *breakerConn) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.conn.Delete(ctx, key)
	})
	return err
}

func (b *breakerConn) Close() error {
	return b.conn.Close()
}

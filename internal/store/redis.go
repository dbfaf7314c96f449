package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDialer dials dedicated Redis clients, one per pool slot. Each
// client is restricted to a single underlying connection so that the
// pool's per-slot lock is the only thing serializing its use.
type RedisDialer struct {
	opts   *redis.Options
	logger *zap.Logger
}

// NewRedisDialer creates a dialer from client options. The options are
// copied per dial; the caller may reuse them.
func NewRedisDialer(opts *redis.Options, logger *zap.Logger) *RedisDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDialer{opts: opts, logger: logger}
}

// Dial connects and verifies the connection with a ping.
func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	opts := *d.opts
	opts.PoolSize = 1

	client := redis.NewClient(&opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	d.logger.Debug("store connection established", zap.String("addr", opts.Addr))
	return &redisConn{client: client}, nil
}

type redisConn struct {
	client *redis.Client
}

func (c *redisConn) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store get %q: %w", key, err)
	}
	return value, nil
}

func (c *redisConn) Put(ctx context.Context, key string, value []byte) error {
	// No TTL: the store is the durable side of the system.
	if err := c.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("store put %q: %w", key, err)
	}
	return nil
}

func (c *redisConn) Delete(ctx context.Context, key string) error {
	deleted, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("store delete %q: %w", key, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

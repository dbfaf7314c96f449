// Package hearth is a cache-aside key-value layer: reads are served
// from an in-memory LRU cache and fall back to a durable store on
// miss, writes go to the store first and then through to the cache,
// and deletes always invalidate the cached entry. Store access runs
// over a fixed pool of connections acquired round-robin.
package hearth

import (
	"context"
	"fmt"

	"github.com/bool64/stats"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/hearth/internal/cache"
	"goflare.io/hearth/internal/config"
	"goflare.io/hearth/internal/coordinator"
	"goflare.io/hearth/internal/pool"
	"goflare.io/hearth/internal/retrier"
	"goflare.io/hearth/internal/store"
)

// Option configures a Hearth during construction.
type Option func(*config.Config) error

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config.Config) error {
		return config.WithLogger(logger)(cfg)
	}
}

// WithCacheCapacity sets the maximum number of cached entries.
func WithCacheCapacity(capacity int) Option {
	return func(cfg *config.Config) error {
		return config.WithCacheCapacity(capacity)(cfg)
	}
}

// WithPoolSize sets the number of store connections.
func WithPoolSize(size int) Option {
	return func(cfg *config.Config) error {
		return config.WithPoolSize(size)(cfg)
	}
}

// WithStats sets a metrics tracker for hit/miss/error counters.
func WithStats(tracker stats.Tracker) Option {
	return func(cfg *config.Config) error {
		return config.WithStats(tracker)(cfg)
	}
}

// WithBreakerSettings replaces the default store circuit breaker settings.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(cfg *config.Config) error {
		return config.WithBreakerSettings(settings)(cfg)
	}
}

// WithoutBreaker disables the store circuit breaker.
func WithoutBreaker() Option {
	return func(cfg *config.Config) error {
		return config.WithoutBreaker()(cfg)
	}
}

// Result types of the three operations, re-exported from the
// coordinator so callers can switch exhaustively on outcomes.
type (
	GetResult    = coordinator.GetResult
	PutResult    = coordinator.PutResult
	DeleteResult = coordinator.DeleteResult
	Stats        = coordinator.Stats
)

const (
	GetHit        = coordinator.GetHit
	GetMiss       = coordinator.GetMiss
	GetStoreError = coordinator.GetStoreError

	SourceCache = coordinator.SourceCache
	SourceStore = coordinator.SourceStore

	PutOK         = coordinator.PutOK
	PutStoreError = coordinator.PutStoreError

	DeleteOK         = coordinator.DeleteOK
	DeleteNotFound   = coordinator.DeleteNotFound
	DeleteStoreError = coordinator.DeleteStoreError
)

// Hearth is the public handle to the cache-aside layer.
type Hearth struct {
	coordinator *coordinator.Coordinator
	cache       *cache.Cache
	pool        *pool.Pool
	logger      *zap.Logger
}

// New builds the cache, dials the store connection pool against the
// given Redis options, and wires the coordinator over both.
func New(ctx context.Context, redisOptions *redis.Options, opts ...Option) (*Hearth, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.Logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize default logger: %w", err)
		}
		cfg.Logger = logger
	}

	c, err := cache.New(cfg.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	var dialer store.Dialer = store.NewRedisDialer(redisOptions, cfg.Logger)
	if cfg.ResilienceConfig.EnableBreaker {
		dialer = store.DialerWithBreaker(dialer, cfg.ResilienceConfig.Breaker)
	}

	r, err := retrier.New(
		cfg.DialRetryConfig.MaxAttempts,
		cfg.DialRetryConfig.BaseDelay,
		cfg.DialRetryConfig.MaxDelay,
		cfg.DialRetryConfig.Jitter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrier: %w", err)
	}

	p, err := pool.New(ctx, dialer, cfg.PoolSize, r, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize connection pool: %w", err)
	}

	cfg.Logger.Info("hearth initialized",
		zap.Int("cache_capacity", cfg.CacheCapacity),
		zap.Int("pool_size", cfg.PoolSize))

	return &Hearth{
		coordinator: coordinator.New(c, p, cfg.Logger, cfg.Stats),
		cache:       c,
		pool:        p,
		logger:      cfg.Logger,
	}, nil
}

// Get serves key from the cache, falling back to the store on miss.
func (h *Hearth) Get(ctx context.Context, key string) GetResult {
	return h.coordinator.Get(ctx, key)
}

// Put writes the store first, then populates the cache.
func (h *Hearth) Put(ctx context.Context, key string, value []byte) PutResult {
	return h.coordinator.Put(ctx, key, value)
}

// Delete removes key from the store and always invalidates the cache.
func (h *Hearth) Delete(ctx context.Context, key string) DeleteResult {
	return h.coordinator.Delete(ctx, key)
}

// Stats reports cumulative cache hit/miss counters and the entry count.
func (h *Hearth) Stats(ctx context.Context) Stats {
	return h.coordinator.Stats(ctx)
}

// Close drains the connection pool and drops all cached entries.
func (h *Hearth) Close() error {
	h.logger.Info("closing hearth")
	err := h.pool.Close()
	h.cache.Purge()
	if err != nil {
		return fmt.Errorf("failed to close connection pool: %w", err)
	}
	return nil
}

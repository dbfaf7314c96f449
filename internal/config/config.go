// Package config holds the service configuration and its defaults.
package config

import (
	"errors"
	"time"

	"github.com/bool64/stats"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrInvalidCacheCapacity = errors.New("cache capacity must be at least 1")
	ErrInvalidPoolSize      = errors.New("pool size must be at least 1")
)

// Config configures the cache, the connection pool, and the ambient
// concerns around them.
type Config struct {
	// CacheCapacity bounds the number of entries in the LRU cache.
	CacheCapacity int
	// PoolSize is the number of store connections dialed at startup.
	PoolSize int

	ResilienceConfig ResilienceConfig
	DialRetryConfig  DialRetryConfig

	Logger *zap.Logger
	Stats  stats.Tracker
}

// ResilienceConfig controls the circuit breaker wrapped around each
// store connection.
type ResilienceConfig struct {
	EnableBreaker bool
	Breaker       gobreaker.Settings
}

// DialRetryConfig controls the backoff applied when dialing store
// connections at startup.
type DialRetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// Option mutates a Config during construction.
type Option func(*Config) error

// NewConfig creates a Config with defaults, then applies options.
func NewConfig(options ...Option) (*Config, error) {
	cfg := &Config{
		CacheCapacity: 10000,
		PoolSize:      4,
		ResilienceConfig: ResilienceConfig{
			EnableBreaker: true,
			Breaker: gobreaker.Settings{
				Name:        "StoreBreaker",
				MaxRequests: 3,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
			},
		},
		DialRetryConfig: DialRetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.5,
		},
		Stats: stats.NoOp{},
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.CacheCapacity < 1 {
		return nil, ErrInvalidCacheCapacity
	}
	if cfg.PoolSize < 1 {
		return nil, ErrInvalidPoolSize
	}

	return cfg, nil
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

// WithStats sets a metrics tracker.
func WithStats(tracker stats.Tracker) Option {
	return func(c *Config) error {
		if tracker != nil {
			c.Stats = tracker
		}
		return nil
	}
}

// WithCacheCapacity sets the LRU cache capacity.
func WithCacheCapacity(capacity int) Option {
	return func(c *Config) error {
		if capacity < 1 {
			return ErrInvalidCacheCapacity
		}
		c.CacheCapacity = capacity
		return nil
	}
}

// WithPoolSize sets the number of store connections.
func WithPoolSize(size int) Option {
	return func(c *Config) error {
		if size < 1 {
			return ErrInvalidPoolSize
		}
		c.PoolSize = size
		return nil
	}
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(c *Config) error {
		c.ResilienceConfig.EnableBreaker = true
		c.ResilienceConfig.Breaker = settings
		return nil
	}
}

// WithoutBreaker disables the store circuit breaker.
func WithoutBreaker() Option {
	return func(c *Config) error {
		c.ResilienceConfig.EnableBreaker = false
		return nil
	}
}

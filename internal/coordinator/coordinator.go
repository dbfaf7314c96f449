// Package coordinator implements the cache-aside protocol over the LRU
// cache and the store connection pool: read-through on miss,
// write-through on put, invalidate-on-delete.
//
// The coordinator holds no per-request state; everything lives in the
// cache and the pool. It is the only component that talks to both.
package coordinator

import (
	"context"
	"errors"

	"github.com/bool64/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/hearth/internal/cache"
	"goflare.io/hearth/internal/pool"
	"goflare.io/hearth/internal/store"
)

// Metric names reported through the stats tracker.
const (
	MetricCacheHit   = "hearth_cache_hit"
	MetricCacheMiss  = "hearth_cache_miss"
	MetricStoreError = "hearth_store_error"
	MetricCacheItems = "hearth_cache_items"
)

// GetOutcome enumerates the results of a Get.
type GetOutcome uint8

const (
	// GetHit means a value was served, from the cache or the store.
	GetHit GetOutcome = iota
	// GetMiss means the key is in neither the cache nor the store.
	GetMiss
	// GetStoreError means the cache missed and the store read failed.
	GetStoreError
)

// Source says where a hit's value came from.
type Source uint8

const (
	SourceCache Source = iota
	SourceStore
)

// GetResult is the tagged outcome of a Get. Value and Source are set
// only for GetHit; Err only for GetStoreError.
type GetResult struct {
	Outcome GetOutcome
	Source  Source
	Value   []byte
	Err     error
}

// PutOutcome enumerates the results of a Put.
type PutOutcome uint8

const (
	PutOK PutOutcome = iota
	PutStoreError
)

// PutResult is the tagged outcome of a Put. Err is set only for
// PutStoreError.
type PutResult struct {
	Outcome PutOutcome
	Err     error
}

// DeleteOutcome enumerates the results of a Delete.
type DeleteOutcome uint8

const (
	DeleteOK DeleteOutcome = iota
	DeleteNotFound
	DeleteStoreError
)

// DeleteResult is the tagged outcome of a Delete. Err is set only for
// DeleteStoreError.
type DeleteResult struct {
	Outcome DeleteOutcome
	Err     error
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits   uint64 `json:"cache_hits"`
	Misses uint64 `json:"cache_misses"`
	Items  uint64 `json:"cache_items"`
}

// Coordinator composes the cache and the connection pool.
type Coordinator struct {
	cache  *cache.Cache
	pool   *pool.Pool
	tracer trace.Tracer
	logger *zap.Logger
	stat   stats.Tracker
}

// New creates a Coordinator. A nil logger or tracker is replaced with
// a no-op implementation.
func New(c *cache.Cache, p *pool.Pool, logger *zap.Logger, stat stats.Tracker) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stat == nil {
		stat = stats.NoOp{}
	}
	return &Coordinator{
		cache:  c,
		pool:   p,
		tracer: otel.Tracer("coordinator"),
		logger: logger,
		stat:   stat,
	}
}

// Get serves key from the cache when possible. On a cache miss it
// reads the store through a pooled connection and, only if the store
// produced a value, populates the cache before returning. Store
// not-found and store errors leave the cache untouched.
func (c *Coordinator) Get(ctx context.Context, key string) GetResult {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if value, ok := c.cache.Get(key); ok {
		c.stat.Add(ctx, MetricCacheHit, 1)
		return GetResult{Outcome: GetHit, Source: SourceCache, Value: value}
	}
	c.stat.Add(ctx, MetricCacheMiss, 1)

	lease := c.pool.Acquire()
	value, err := lease.Conn().Get(ctx, key)
	lease.Release()

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return GetResult{Outcome: GetMiss}
		}
		c.stat.Add(ctx, MetricStoreError, 1, "op", "get")
		c.logger.Warn("store read failed", zap.String("key", key), zap.Error(err))
		return GetResult{Outcome: GetStoreError, Err: err}
	}

	c.cache.Put(key, value)
	return GetResult{Outcome: GetHit, Source: SourceStore, Value: value}
}

// Put writes the store first (upsert), then populates the cache. A
// failed store write leaves the cache untouched: the cache is never
// ahead of an uncommitted write.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte) PutResult {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Put", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	lease := c.pool.Acquire()
	err := lease.Conn().Put(ctx, key, value)
	lease.Release()

	if err != nil {
		c.stat.Add(ctx, MetricStoreError, 1, "op", "put")
		c.logger.Warn("store write failed", zap.String("key", key), zap.Error(err))
		return PutResult{Outcome: PutStoreError, Err: err}
	}

	c.cache.Put(key, value)
	return PutResult{Outcome: PutOK}
}

// Delete issues the store delete, then invalidates the cache entry
// whatever the store said. A transiently failed store delete therefore
// costs one cache-cold read later, never stale cache state. The result
// reflects the store outcome alone.
func (c *Coordinator) Delete(ctx context.Context, key string) DeleteResult {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Delete", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	lease := c.pool.Acquire()
	err := lease.Conn().Delete(ctx, key)
	lease.Release()

	c.cache.Delete(key)

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeleteResult{Outcome: DeleteNotFound}
		}
		c.stat.Add(ctx, MetricStoreError, 1, "op", "delete")
		c.logger.Warn("store delete failed", zap.String("key", key), zap.Error(err))
		return DeleteResult{Outcome: DeleteStoreError, Err: err}
	}
	return DeleteResult{Outcome: DeleteOK}
}

// Stats reports the cumulative cache counters and current entry count.
func (c *Coordinator) Stats(ctx context.Context) Stats {
	s := c.cache.Stats()
	c.stat.Set(ctx, MetricCacheItems, float64(s.Items))
	return Stats{Hits: s.Hits, Misses: s.Misses, Items: s.Items}
}

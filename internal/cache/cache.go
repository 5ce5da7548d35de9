// Package cache implements the fail-open response cache
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fuaadabdullah/inference-gateway/internal/storage"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// Store is the key-value backend the cache runs on. *storage.RedisClient
// satisfies it; tests substitute an in-memory implementation.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	CountPattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
	Info(ctx context.Context, section string) (string, error)
	Addr() string
}

// ErrorSink receives absorbed cache-backend errors. The metrics collector
// implements it so cache failures stay observable without ever surfacing
// to callers.
type ErrorSink interface {
	Increment(name string, amount int64)
}

// Stats describes the cache backend for /cache/stats
type Stats struct {
	TotalKeys   int64          `json:"total_keys"`
	BackendInfo map[string]any `json:"backend_info"`
}

// ResponseCache stores completed chat responses keyed by digest of the
// requested model (or "auto") and the last user turn. Every operation is
// fail-open: a missing or unreachable backend degrades to cache misses.
type ResponseCache struct {
	store  Store
	prefix string
	ttl    time.Duration
	logger *utils.Logger
	errors ErrorSink
}

// New creates a response cache. A nil store yields a cache that always
// misses, which keeps the gateway serving when Redis is absent.
func New(store Store, config *types.CacheConfig, logger *utils.Logger, errors ErrorSink) *ResponseCache {
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "response"
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResponseCache{
		store:  store,
		prefix: prefix + ":",
		ttl:    ttl,
		logger: logger,
		errors: errors,
	}
}

// Key derives the deterministic cache key for a request. The model branch
// of the digest uses the explicit model hint when present so the hit path
// never needs to classify.
func Key(model, lastUserContent string) string {
	if model == "" {
		model = "auto"
	}
	return utils.DigestKey(model, lastUserContent)
}

// Get returns the cached response for a key, or false on any miss,
// including backend failures.
func (c *ResponseCache) Get(ctx context.Context, key string) (*types.ChatCompletionResponse, bool) {
	if c.store == nil {
		return nil, false
	}

	var resp types.ChatCompletionResponse
	err := c.store.Get(ctx, c.prefix+key, &resp)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.LogCacheError("get", err)
			c.countError()
		}
		return nil, false
	}
	return &resp, true
}

// Put stores a response best-effort. Failures are logged and counted only.
func (c *ResponseCache) Put(ctx context.Context, key string, resp *types.ChatCompletionResponse) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, c.prefix+key, resp, c.ttl); err != nil {
		c.logger.LogCacheError("put", err)
		c.countError()
	}
}

// Clear removes every cached response, returning the number deleted.
func (c *ResponseCache) Clear(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.DeletePattern(ctx, c.prefix+"*")
}

// Stats reports key count and backend details for /cache/stats.
func (c *ResponseCache) Stats(ctx context.Context) Stats {
	stats := Stats{BackendInfo: map[string]any{"type": "redis"}}
	if c.store == nil {
		stats.BackendInfo["type"] = "none"
		return stats
	}

	stats.BackendInfo["addr"] = c.store.Addr()
	stats.BackendInfo["ttl_seconds"] = int64(c.ttl.Seconds())

	count, err := c.store.CountPattern(ctx, c.prefix+"*")
	if err != nil {
		c.logger.LogCacheError("stats", err)
		stats.BackendInfo["error"] = err.Error()
		return stats
	}
	stats.TotalKeys = count
	return stats
}

// Healthy reports whether the cache backend answers pings.
func (c *ResponseCache) Healthy(ctx context.Context) string {
	if c.store == nil {
		return "disabled"
	}
	if err := c.store.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}

func (c *ResponseCache) countError() {
	if c.errors != nil {
		c.errors.Increment("cache_errors", 1)
	}
}

// Package cache implements the result cache consulted before dispatching a
// claimed job. The durable results table is authoritative: a lookup matches
// prior results on either the originally requested or the redirect-resolved
// URL, within a per-kind freshness window. An optional Redis layer fronts the
// SQL lookup for hot URLs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtr002/Crawl-Queue/internal/config"
	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/logger"
)

// Cache looks up previously computed results by worker kind and URL.
type Cache struct {
	store   interfaces.JobStore
	redis   redis.UniversalClient
	windows config.CacheConfig
}

// New creates a result cache. redisClient may be nil; the cache then works
// purely against the durable store.
func New(store interfaces.JobStore, redisClient redis.UniversalClient, windows config.CacheConfig) *Cache {
	return &Cache{
		store:   store,
		redis:   redisClient,
		windows: windows,
	}
}

// Lookup returns a prior result for the worker kind and URL within the
// configured freshness window, or nil, nil on a miss. A miss is not an error:
// it signals the worker loop to execute the fetcher.
func (c *Cache) Lookup(ctx context.Context, worker, url string) (*interfaces.Result, error) {
	if url == "" {
		return nil, nil
	}

	window := c.windows.TTLFor(worker)
	if window <= 0 {
		return nil, nil
	}

	if hit := c.redisGet(ctx, worker, url); hit != nil {
		return hit, nil
	}

	result, err := c.store.FindCachedResult(ctx, worker, url, window)
	if err != nil {
		return nil, fmt.Errorf("cache lookup for %s %q: %w", worker, url, err)
	}
	if result == nil {
		return nil, nil
	}

	c.redisSet(ctx, worker, url, result, window)
	return result, nil
}

func cacheKey(worker, url string) string {
	return "crawlqueue:result:" + worker + ":" + url
}

// redisGet consults the hot layer. Redis faults never fail a lookup; the
// durable store answers instead.
func (c *Cache) redisGet(ctx context.Context, worker, url string) *interfaces.Result {
	if c.redis == nil {
		return nil
	}

	data, err := c.redis.Get(ctx, cacheKey(worker, url)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Logger.Warn().Err(err).Msg("Redis cache get failed")
		}
		return nil
	}

	var result interfaces.Result
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Logger.Warn().Err(err).Msg("Discarding undecodable cached result")
		return nil
	}
	return &result
}

func (c *Cache) redisSet(ctx context.Context, worker, url string, result *interfaces.Result, window time.Duration) {
	if c.redis == nil {
		return
	}

	ttl := window - time.Since(result.CreatedAt)
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, cacheKey(worker, url), data, ttl).Err(); err != nil {
		logger.Logger.Warn().Err(err).Msg("Redis cache set failed")
	}
}

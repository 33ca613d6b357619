// Package data implements the external collaborators feeding the risk
// engine: the CoinGecko historical price feed and the lending-protocol
// subgraph portfolio feed, with Redis caching in front of the former.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/defirisk/lendvar/internal/metrics"
)

// Cache is a thin JSON cache over Redis. A nil *Cache is a valid no-op
// cache, so callers never branch on whether caching is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
	met    *metrics.Registry
}

// NewCache connects to Redis and verifies the connection.
func NewCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log zerolog.Logger, met *metrics.Registry) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		prefix: "lendvar:",
		log:    log.With().Str("component", "cache").Logger(),
		met:    met,
	}, nil
}

// Get unmarshals the cached value for key into dst, reporting whether the
// key was present.
func (c *Cache) Get(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		c.miss()
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry corrupt, ignoring")
		c.miss()
		return false
	}
	c.hit()
	return true
}

// Set stores value under key with the cache's default TTL. Failures are
// logged, not returned: a cold cache only costs an upstream request.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) hit() {
	if c.met != nil {
		c.met.CacheHits.WithLabelValues("prices").Inc()
	}
}

func (c *Cache) miss() {
	if c.met != nil {
		c.met.CacheMisses.WithLabelValues("prices").Inc()
	}
}

// Package cache fronts hot, small, frequently-read records with a
// short-TTL Redis layer. It is an optimization only and never
// authoritative: every failure degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

const materialKeyPrefix = "material:meta:"

// MaterialCache caches the access-path projection of ACTIVE materials
// keyed by slug. Entries are written lazily on miss and expire by TTL;
// admin mutations do not bust them, so the TTL is the staleness bound.
type MaterialCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// New builds a MaterialCache. A nil Redis client yields an always-miss
// cache, which callers may use unconditionally.
func New(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *MaterialCache {
	return &MaterialCache{rdb: rdb, ttl: ttl, log: log.With().Str("component", "material_cache").Logger()}
}

// Get returns the cached projection for a slug, or ok=false on miss,
// decode failure or Redis error.
func (c *MaterialCache) Get(ctx context.Context, slug string) (model.MaterialMeta, bool) {
	if c.rdb == nil {
		return model.MaterialMeta{}, false
	}
	raw, err := c.rdb.Get(ctx, materialKeyPrefix+slug).Bytes()
	if err == redis.Nil {
		return model.MaterialMeta{}, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("slug", slug).Msg("cache get failed")
		return model.MaterialMeta{}, false
	}
	var meta model.MaterialMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		c.log.Warn().Err(err).Str("slug", slug).Msg("cache entry undecodable")
		return model.MaterialMeta{}, false
	}
	return meta, true
}

// Set stores the projection under the configured TTL. Failures are
// logged and swallowed; the next request simply misses again.
func (c *MaterialCache) Set(ctx context.Context, slug string, meta model.MaterialMeta) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, materialKeyPrefix+slug, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("slug", slug).Msg("cache set failed")
	}
}

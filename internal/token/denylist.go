package token

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Denylist records explicitly revoked access-token jtis. Entries live
// exactly as long as the token they revoke would have, so storage is
// self-expiring and bounded by the access-token TTL.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Revoked(ctx context.Context, jti string) bool
}

const denylistPrefix = "auth:denylist:"

// RedisDenylist implements Denylist on Redis with per-key expiry.
// A nil client or a Redis outage degrades to "not revoked" with a
// warning: the token's own expiry still bounds the exposure, and denying
// every authenticated request over a cache hiccup is the worse failure.
type RedisDenylist struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisDenylist(rdb *redis.Client, log zerolog.Logger) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, log: log.With().Str("component", "denylist").Logger()}
}

func (d *RedisDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if d.rdb == nil || ttl <= 0 {
		return nil
	}
	if err := d.rdb.Set(ctx, denylistPrefix+jti, "1", ttl).Err(); err != nil {
		d.log.Warn().Err(err).Msg("denylist add failed")
		return err
	}
	return nil
}

func (d *RedisDenylist) Revoked(ctx context.Context, jti string) bool {
	if d.rdb == nil || jti == "" {
		return false
	}
	_, err := d.rdb.Get(ctx, denylistPrefix+jti).Result()
	switch {
	case err == redis.Nil:
		return false
	case err != nil:
		d.log.Warn().Err(err).Msg("denylist lookup failed, failing open")
		return false
	}
	return true
}

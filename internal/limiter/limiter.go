// Package limiter guards the material-access endpoint with a per-user
// sliding-window counter on Redis.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrRateLimited is returned when a user exceeds the window ceiling.
// Handlers translate it into HTTP 429.
var ErrRateLimited = errors.New("rate limit exceeded")

// The script keeps one sorted set per user scored by request timestamp,
// drops entries older than the window, and admits the request only when
// the remaining cardinality is below the ceiling. Key expiry tracks the
// window so idle users cost nothing.
var slidingWindowScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local window_ms = tonumber(ARGV[2])
    local max = tonumber(ARGV[3])

    redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
    local count = redis.call('ZCARD', key)
    if count >= max then
        return { 0, count }
    end
    redis.call('ZADD', key, now_ms, tostring(now_ms) .. '-' .. tostring(math.random(1000000)))
    redis.call('PEXPIRE', key, window_ms)
    return { 1, count + 1 }
`)

// SlidingWindow is the Redis-backed limiter. Infrastructure failure of
// the counter store fails open: a warning is logged and the request is
// permitted, trading strict enforcement for availability of the read
// path.
type SlidingWindow struct {
	rdb     *redis.Client
	max     int
	window  time.Duration
	enabled bool
	log     zerolog.Logger
}

func NewSlidingWindow(rdb *redis.Client, max int, window time.Duration, enabled bool, log zerolog.Logger) *SlidingWindow {
	return &SlidingWindow{
		rdb:     rdb,
		max:     max,
		window:  window,
		enabled: enabled,
		log:     log.With().Str("component", "limiter").Logger(),
	}
}

// Allow reports whether the user may proceed and how many requests the
// current window holds after this one. Disabled or nil-client limiters
// always allow.
func (l *SlidingWindow) Allow(ctx context.Context, userID uint64) (bool, int, error) {
	if !l.enabled || l.rdb == nil {
		return true, 0, nil
	}
	key := fmt.Sprintf("rl:access:%d", userID)
	now := time.Now()
	vals, err := slidingWindowScript.Run(ctx, l.rdb, []string{key},
		now.UnixMilli(), l.window.Milliseconds(), l.max).Result()
	if err != nil {
		l.log.Warn().Err(err).Uint64("user_id", userID).Msg("counter store unreachable, failing open")
		return true, 0, nil
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		l.log.Warn().Uint64("user_id", userID).Msgf("unexpected script result: %#v", vals)
		return true, 0, nil
	}
	allowed := asInt64(arr[0]) == 1
	count := int(asInt64(arr[1]))
	if !allowed {
		return false, count, ErrRateLimited
	}
	return true, count, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RateLimiter caps generation requests per user per hour, independently of
// the monthly usage quota.
type RateLimiter struct {
	redis *redis.Client
	limit int64
}

func NewRateLimiter(rdb *redis.Client, limit int64) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit}
}

func (r *RateLimiter) Allow(ctx context.Context, userID string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("tubebrief:ratelimit:%s:%s", userID, windowStart.Format("2006010215"))
	res, err := incrWithTTLScript.Run(ctx, r.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= r.limit, res, windowEnd, nil
}

// ResetThrottle suppresses repeat password-reset emails for the same address
// within the ttl.
type ResetThrottle struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewResetThrottle(rdb *redis.Client, ttl time.Duration) *ResetThrottle {
	return &ResetThrottle{redis: rdb, ttl: ttl}
}

func (t *ResetThrottle) MarkFirst(ctx context.Context, email string) (bool, error) {
	key := fmt.Sprintf("tubebrief:resetmail:%s", email)
	ok, err := t.redis.SetNX(ctx, key, "1", t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reset throttle setnx: %w", err)
	}
	return ok, nil
}

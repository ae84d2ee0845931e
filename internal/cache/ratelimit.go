package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "ratelimit:"

// RateLimiter counts hits per key in fixed windows. A nil client allows
// everything.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow records one hit for key and reports whether it is within the limit,
// along with the current count. On a Redis error the hit is allowed and the
// error returned so the caller can log it.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, 0, nil
	}

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, rateKeyPrefix+key)
	pipe.ExpireNX(ctx, rateKeyPrefix+key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	n := incr.Val()
	return n <= l.limit, n, nil
}

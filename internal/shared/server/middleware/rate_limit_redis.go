package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/telemetry"
)

const (
	redisWindow    = time.Minute
	redisKeyPrefix = "ratelimit:"
	redisTimeout   = 250 * time.Millisecond
)

// windowCounter increments key and returns the new count; the key expires after ttl.
type windowCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// RedisLimiter counts requests in fixed one-minute windows shared by every instance.
// If Redis is unreachable requests are let through.
type RedisLimiter struct {
	counter windowCounter
	now     func() time.Time
}

// NewRedisLimiter builds a limiter on top of a go-redis client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{counter: redisCounter{client: client}, now: time.Now}
}

// NewRedisLimiterFromURL parses a redis:// URL and builds a limiter.
func NewRedisLimiterFromURL(rawURL string) (*RedisLimiter, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisLimiter(client), client, nil
}

// Allow implements Limiter. The window allows the larger of PerMinute and Burst.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, time.Duration) {
	if l == nil || !limit.enabled() {
		return true, 0
	}
	now := l.now()
	windowStart := now.Truncate(redisWindow)
	windowKey := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, windowStart.Unix())

	callCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	count, err := l.counter.Incr(callCtx, windowKey, redisWindow+time.Second)
	if err != nil {
		metrics.IncRateLimiterError()
		telemetry.Warn("ratelimit.redis_unavailable", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return true, 0
	}

	allowed := limit.PerMinute
	if limit.Burst > allowed {
		allowed = limit.Burst
	}
	if count <= int64(allowed) {
		return true, 0
	}
	return false, windowStart.Add(redisWindow).Sub(now)
}

// PingContext reports whether Redis answers. It lets the limiter back a health check.
func (l *RedisLimiter) PingContext(ctx context.Context) error {
	return l.counter.Ping(ctx)
}

type redisCounter struct {
	client *redis.Client
}

func (r redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r redisCounter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

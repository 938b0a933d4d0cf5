package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/server/respond"
)

// SubmitGroup is the rate limit group for submission intake.
const SubmitGroup = "submit"

// Buckets untouched for this long are refilled anyway and can be dropped.
const bucketIdleTTL = 10 * time.Minute

// Limit is a token bucket: PerMinute tokens per minute, at most Burst saved up.
// A zero PerMinute disables limiting.
type Limit struct {
	PerMinute int
	Burst     int
}

// PerMinute allows n requests per minute with a burst of n.
func PerMinute(n int) Limit {
	if n <= 0 {
		return Limit{}
	}
	return Limit{PerMinute: n, Burst: n}
}

func (l Limit) enabled() bool { return l.PerMinute > 0 && l.Burst > 0 }

func (l Limit) ratePerSecond() float64 { return float64(l.PerMinute) / 60.0 }

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (bool, time.Duration)
}

// RateLimiter is the in-process Limiter. It keeps one token bucket per client and group.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastPrune time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{buckets: make(map[string]*bucket), now: now}
}

// RateLimit rejects requests from a client over the group's limit with 429.
// A nil limiter gets a private in-process one.
func RateLimit(group string, limit Limit, limiter Limiter) gin.HandlerFunc {
	if !limit.enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	return func(c *gin.Context) {
		key := group + "|" + strings.TrimSpace(c.ClientIP())
		allowed, wait := limiter.Allow(c.Request.Context(), key, limit)
		if allowed {
			c.Next()
			return
		}

		metrics.IncRateLimited(group)
		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "too many requests, try again shortly",
			gin.H{"retryAfterMs": wait.Milliseconds()})
	}
}

// Allow takes a token from key's bucket, or reports how long until one is available.
func (l *RateLimiter) Allow(_ context.Context, key string, limit Limit) (bool, time.Duration) {
	if l == nil || !limit.enabled() {
		return true, 0
	}
	now := l.now()
	rate := limit.ratePerSecond()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(limit.Burst), last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(limit.Burst), b.tokens+elapsed*rate)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration(math.Ceil((1-b.tokens)/rate*1000)) * time.Millisecond
	return false, wait
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < bucketIdleTTL {
		return
	}
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.Sub(b.last) >= bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}

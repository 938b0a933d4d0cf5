package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"picture-backend/internal/shared/telemetry"
)

func TestRateLimitSubmitGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Cleanup(telemetry.SetOutput(io.Discard))

	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.POST("/api/v1/submissions", RateLimit(SubmitGroup, Limit{PerMinute: 60, Burst: 2}, limiter), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})
	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil))
		if resp.Code != http.StatusCreated {
			t.Fatalf("submit %d expected 201, got %d", i+1, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp.Header().Get("Retry-After"))
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "rate_limited" || body.Error.Details["retryAfterMs"] != float64(1000) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}

	// Unlimited routes are unaffected.
	health := httptest.NewRecorder()
	r.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", health.Code)
	}

	now = now.Add(time.Second)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected refill after 1s, got %d", resp.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/submissions", RateLimit(SubmitGroup, PerMinute(0), nil), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	for i := 0; i < 50; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil))
		if resp.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i+1, resp.Code)
		}
	}
}

func TestRateLimiterSeparatesKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	limit := Limit{PerMinute: 60, Burst: 1}

	if ok, _ := limiter.Allow(ctx, "submit|10.0.0.1", limit); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, wait := limiter.Allow(ctx, "submit|10.0.0.1", limit); ok || wait != time.Second {
		t.Fatalf("expected to wait 1s, got ok=%v wait=%s", ok, wait)
	}
	if ok, _ := limiter.Allow(ctx, "submit|10.0.0.2", limit); !ok {
		t.Fatalf("other client should have its own bucket")
	}
}

func TestRateLimiterPrunesIdleBuckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	limit := PerMinute(30)

	limiter.Allow(ctx, "submit|10.0.0.1", limit)
	limiter.Allow(ctx, "submit|10.0.0.2", limit)
	if got := bucketCount(limiter); got != 2 {
		t.Fatalf("expected 2 buckets, got %d", got)
	}

	now = now.Add(bucketIdleTTL + time.Second)
	limiter.Allow(ctx, "submit|10.0.0.3", limit)
	if got := bucketCount(limiter); got != 1 {
		t.Fatalf("expected idle buckets dropped, got %d", got)
	}
}

func TestPerMinute(t *testing.T) {
	limit := PerMinute(30)
	if limit.Burst != 30 || limit.ratePerSecond() != 0.5 {
		t.Fatalf("unexpected limit: %+v", limit)
	}
	if (PerMinute(-1) != Limit{}) {
		t.Fatalf("non-positive should disable the limit")
	}
}

func bucketCount(l *RateLimiter) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

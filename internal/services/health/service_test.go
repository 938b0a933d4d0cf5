package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestStatus(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	tests := []struct {
		name   string
		db     Pinger
		status string
		dbText string
	}{
		{name: "memory", db: nil, status: StatusOK, dbText: "memory"},
		{name: "db up", db: fakePinger{}, status: StatusOK, dbText: "ok"},
		{name: "db down", db: fakePinger{err: errors.New("refused")}, status: StatusDegraded, dbText: "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewService(tt.db, now).Status(context.Background())
			if got.Status != tt.status || got.Database != tt.dbText {
				t.Fatalf("unexpected report: %+v", got)
			}
			if got.Timestamp != "2026-10-18T12:00:00Z" {
				t.Fatalf("unexpected timestamp %q", got.Timestamp)
			}
		})
	}
}

func TestStatusReportsLimiterWithoutDegrading(t *testing.T) {
	svc := NewService(fakePinger{}, nil)
	if got := svc.Status(context.Background()); got.RateLimiter != "memory" {
		t.Fatalf("expected in-process limiter, got %+v", got)
	}

	svc.WithLimiter(fakePinger{})
	if got := svc.Status(context.Background()); got.RateLimiter != "redis" || got.Status != StatusOK {
		t.Fatalf("unexpected report: %+v", got)
	}

	svc.WithLimiter(fakePinger{err: errors.New("timeout")})
	got := svc.Status(context.Background())
	if got.RateLimiter != "unavailable" {
		t.Fatalf("expected limiter outage to be reported, got %+v", got)
	}
	if got.Status != StatusOK {
		t.Fatalf("limiter outage must not degrade health, got %+v", got)
	}
}

package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Report is the health payload.
type Report struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
	// RateLimiter never degrades Status: the limiter lets traffic through when its backend is down.
	RateLimiter string `json:"rate_limiter"`
}

// Service encapsulates health-related checks.
type Service struct {
	db      Pinger
	limiter Pinger
	now     func() time.Time
}

// NewService constructs a health service. db may be nil when running on the in-memory store.
func NewService(db Pinger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, now: now}
}

// WithLimiter adds the shared rate limit backend to the report.
func (s *Service) WithLimiter(limiter Pinger) *Service {
	s.limiter = limiter
	return s
}

// Status checks the store and returns a report.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{
		Status:      StatusOK,
		Timestamp:   s.now().UTC().Format(time.RFC3339Nano),
		Database:    "memory",
		RateLimiter: "memory",
	}
	if s.db != nil {
		if err := ping(ctx, s.db); err != nil {
			report.Status = StatusDegraded
			report.Database = "unavailable"
		} else {
			report.Database = "ok"
		}
	}
	if s.limiter != nil {
		if err := ping(ctx, s.limiter); err != nil {
			report.RateLimiter = "unavailable"
		} else {
			report.RateLimiter = "redis"
		}
	}
	return report
}

func ping(ctx context.Context, p Pinger) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.PingContext(pingCtx)
}

// Package reconcile retries delivery for submissions whose external request never succeeded.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"picture-backend/internal/delivery"
	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/shared/tracing"
	"picture-backend/internal/submissions"
)

const (
	defaultBatchSize = 50
	defaultInterval  = time.Minute
	// Rows younger than this may still have a delivery in flight from the intake request.
	defaultMinAge = 2 * delivery.DefaultTimeout
	// Rows the endpoint rejected outright are left out of sweeps for this long.
	defaultParkFor = 6 * time.Hour
	maxParked      = 1000
)

const (
	ResultDelivered = "delivered"
	ResultSkipped   = "skipped"
	ResultRetry     = "retry"
	ResultDropped   = "dropped"
)

// ErrPermanent marks a redelivery that will not succeed by trying again.
var ErrPermanent = errors.New("permanent delivery failure")

// Service redelivers stored submissions.
type Service struct {
	Repo      submissions.Repo
	Delivery  submissions.Deliverer
	BatchSize int
	Interval  time.Duration
	MinAge    time.Duration
	// ParkFor is how long a row the endpoint rejected stays out of sweeps.
	ParkFor time.Duration
	Now     func() time.Time

	mu     sync.Mutex
	parked map[int64]time.Time
}

// SweepStats summarises one reconciliation pass.
type SweepStats struct {
	Pending   int
	Attempted int
	Delivered int
	Failed    int
	Parked    int
}

// Redeliver makes one delivery attempt for id. It is a no-op for rows already sent.
// A nil error means the row is now delivered or needs no further work.
func (s *Service) Redeliver(ctx context.Context, id int64) error {
	sub, err := s.Repo.GetByID(ctx, id)
	if errors.Is(err, submissions.ErrNotFound) {
		metrics.IncRedeliveryJob(ResultDropped)
		return fmt.Errorf("%w: submission %d: %w", ErrPermanent, id, err)
	}
	if err != nil {
		metrics.IncRedeliveryJob(ResultRetry)
		return fmt.Errorf("load submission %d: %w", id, err)
	}
	if sub.ExternalRequestSent {
		metrics.IncRedeliveryJob(ResultSkipped)
		return nil
	}

	out := s.Delivery.Deliver(ctx, sub.DeliveryRequest())
	if out.Accepted() {
		// The endpoint has the payload; only the flag is missing.
		if err := s.Repo.MarkExternalRequestSent(ctx, id); err != nil {
			metrics.IncRedeliveryJob(ResultRetry)
			return fmt.Errorf("mark submission %d sent: %w", id, err)
		}
	}
	switch {
	case out.OK(), out.Accepted():
		metrics.IncRedeliveryJob(ResultDelivered)
		return nil
	case out.Retriable():
		metrics.IncRedeliveryJob(ResultRetry)
		return fmt.Errorf("redeliver submission %d (%s): %w", id, out.Reason, out.Err)
	default:
		metrics.IncRedeliveryJob(ResultDropped)
		return fmt.Errorf("%w: submission %d (%s): %w", ErrPermanent, id, out.Reason, out.Err)
	}
}

// ConfirmSent records that the endpoint already accepted id, without posting it again.
// It serves redelivery requests whose original attempt failed only at the flag update.
func (s *Service) ConfirmSent(ctx context.Context, id int64) error {
	sub, err := s.Repo.GetByID(ctx, id)
	if errors.Is(err, submissions.ErrNotFound) {
		metrics.IncRedeliveryJob(ResultDropped)
		return fmt.Errorf("%w: submission %d: %w", ErrPermanent, id, err)
	}
	if err != nil {
		metrics.IncRedeliveryJob(ResultRetry)
		return fmt.Errorf("load submission %d: %w", id, err)
	}
	if sub.ExternalRequestSent {
		metrics.IncRedeliveryJob(ResultSkipped)
		return nil
	}
	if err := s.Repo.MarkExternalRequestSent(ctx, id); err != nil {
		metrics.IncRedeliveryJob(ResultRetry)
		return fmt.Errorf("mark submission %d sent: %w", id, err)
	}
	metrics.IncRedeliveryJob(ResultDelivered)
	telemetry.Info("reconcile.confirmed", map[string]any{"submission_id": id})
	return nil
}

// SweepOnce delivers one batch of pending submissions, oldest first.
func (s *Service) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	if !s.deliveryConfigured() {
		return stats, nil
	}
	ctx, span := tracing.Tracer().Start(ctx, "reconcile.sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int("reconcile.pending", stats.Pending),
			attribute.Int("reconcile.delivered", stats.Delivered),
			attribute.Int("reconcile.failed", stats.Failed),
		)
		span.End()
	}()

	pending, err := s.Repo.ListPending(ctx, s.batchSize(), s.parkedIDs()...)
	if err != nil {
		return stats, fmt.Errorf("list pending submissions: %w", err)
	}
	stats.Pending = len(pending)
	metrics.SetReconcilePending(len(pending))

	cutoff := s.now().Add(-s.minAge())
	for _, sub := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if sub.SubmittedAt.After(cutoff) {
			// Pending rows are oldest first; the rest are younger still.
			break
		}
		stats.Attempted++
		out := s.Delivery.Deliver(ctx, sub.DeliveryRequest())
		switch {
		case out.OK():
			stats.Delivered++
			metrics.IncRedeliveryJob(ResultDelivered)
		case out.Retriable():
			stats.Failed++
			metrics.IncRedeliveryJob(ResultRetry)
		default:
			stats.Failed++
			metrics.IncRedeliveryJob(ResultDropped)
			if s.park(sub.ID) {
				stats.Parked++
			}
		}
	}
	return stats, nil
}

// park keeps id out of sweeps for ParkFor. It reports false when the set is full.
func (s *Service) park(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parked == nil {
		s.parked = make(map[int64]time.Time)
	}
	if len(s.parked) >= maxParked {
		return false
	}
	s.parked[id] = s.now().Add(s.parkFor())
	return true
}

// parkedIDs returns the ids still parked, dropping expired entries.
func (s *Service) parkedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ids := make([]int64, 0, len(s.parked))
	for id, until := range s.parked {
		if !now.Before(until) {
			delete(s.parked, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	telemetry.Info("reconcile.started", map[string]any{"interval": interval.String(), "batch_size": s.batchSize()})
	defer telemetry.Info("reconcile.stopped", nil)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	stats, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.Error("reconcile.sweep_failed", map[string]any{"error": err.Error()})
		}
		return
	}
	if stats.Attempted > 0 {
		telemetry.Info("reconcile.sweep", map[string]any{
			"pending":   stats.Pending,
			"attempted": stats.Attempted,
			"delivered": stats.Delivered,
			"failed":    stats.Failed,
			"parked":    stats.Parked,
		})
	}
}

func (s *Service) deliveryConfigured() bool {
	if s.Delivery == nil {
		return false
	}
	if c, ok := s.Delivery.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func (s *Service) batchSize() int {
	if s.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.BatchSize
}

func (s *Service) parkFor() time.Duration {
	if s.ParkFor <= 0 {
		return defaultParkFor
	}
	return s.ParkFor
}

func (s *Service) minAge() time.Duration {
	if s.MinAge <= 0 {
		return defaultMinAge
	}
	return s.MinAge
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

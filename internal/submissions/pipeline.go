package submissions

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"picture-backend/internal/delivery"
	"picture-backend/internal/queue"
	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/shared/tracing"
	"picture-backend/internal/shared/util"
)

const (
	MessageAccepted = "Thanks! You'll receive your picture by email soon!"
	MessageFailed   = "Failed to process your submission. Please try again."
)

const enqueueTimeout = 5 * time.Second

// Deliverer forwards a stored submission to the external endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) delivery.Outcome
}

// Pipeline runs intake then delivery for one submission.
type Pipeline struct {
	Intake   *Intake
	Delivery Deliverer
	// Queue is optional. When set, retriable delivery failures are enqueued for a worker.
	Queue queue.Client
}

// SubmitResult carries the caller response plus what happened along the way.
type SubmitResult struct {
	Response   SubmissionResponse
	Submission Submission
	Outcome    delivery.Outcome
	Err        error
}

// Submit stores candidate and attempts delivery. The response reports success once the
// submission is stored, whatever the delivery outcome.
func (p *Pipeline) Submit(ctx context.Context, candidate Candidate) SubmissionResponse {
	return p.SubmitDetailed(ctx, candidate).Response
}

// SubmitDetailed is Submit with the intermediate results exposed.
func (p *Pipeline) SubmitDetailed(ctx context.Context, candidate Candidate) SubmitResult {
	// A client that goes away must not abandon a half-processed submission.
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Tracer().Start(ctx, "submission.submit")
	defer span.End()

	if p == nil || p.Intake == nil {
		err := errors.New("submission pipeline not configured")
		metrics.IncSubmission(metrics.SubmissionFailed)
		return SubmitResult{Response: failedResponse(), Err: err}
	}

	sub, err := p.Intake.Create(ctx, candidate)
	if err != nil {
		p.logIntakeFailure(ctx, err)
		span.SetStatus(codes.Error, err.Error())
		return SubmitResult{Response: failedResponse(), Err: err}
	}
	span.SetAttributes(attribute.Int64("submission.id", sub.ID))
	metrics.IncSubmission(metrics.SubmissionAccepted)
	stored := p.fields(ctx, sub.ID)
	stored["email_fp"] = util.Fingerprint(sub.Email)
	stored["picture_bytes"] = len(sub.PictureData)
	telemetry.Info("submission.stored", stored)

	result := SubmitResult{
		Response: SubmissionResponse{
			Success:      true,
			Message:      MessageAccepted,
			SubmissionID: sub.ID,
		},
		Submission: sub,
	}

	if p.Delivery == nil {
		result.Outcome = delivery.Outcome{Reason: delivery.ReasonNotConfigured}
		return result
	}
	result.Outcome = p.Delivery.Deliver(ctx, sub.DeliveryRequest())
	if result.Outcome.OK() {
		result.Submission.ExternalRequestSent = true
		return result
	}
	if result.Outcome.Retriable() {
		p.enqueue(ctx, sub.ID, result.Outcome)
	}
	return result
}

func (p *Pipeline) enqueue(ctx context.Context, id int64, out delivery.Outcome) {
	if p.Queue == nil {
		return
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	msg := queue.NewMessage(id, telemetry.RequestIDFromContext(ctx), string(out.Reason))
	fields := p.fields(ctx, id)
	if err := p.Queue.Send(enqueueCtx, msg); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("submission.redelivery_enqueue_failed", fields)
		return
	}
	fields["reason"] = string(out.Reason)
	telemetry.Info("submission.redelivery_enqueued", fields)
}

func (p *Pipeline) logIntakeFailure(ctx context.Context, err error) {
	fields := p.fields(ctx, 0)
	fields["error"] = err.Error()
	var verr *ValidationError
	if errors.As(err, &verr) {
		metrics.IncSubmission(metrics.SubmissionRejected)
		telemetry.Warn("submission.rejected", fields)
		return
	}
	metrics.IncSubmission(metrics.SubmissionFailed)
	telemetry.Error("submission.store_failed", fields)
}

func (p *Pipeline) fields(ctx context.Context, id int64) map[string]any {
	fields := map[string]any{}
	if id != 0 {
		fields["submission_id"] = id
	}
	if requestID := telemetry.RequestIDFromContext(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func failedResponse() SubmissionResponse {
	return SubmissionResponse{Success: false, Message: MessageFailed, SubmissionID: 0}
}

package workerproc

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"picture-backend/internal/delivery"
	"picture-backend/internal/queue"
	"picture-backend/internal/reconcile"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/shared/tracing"
	"picture-backend/internal/shared/util"
)

// Redeliverer retries delivery for one stored submission.
type Redeliverer interface {
	Redeliver(ctx context.Context, id int64) error
}

// confirmer is implemented by redeliverers that can record an accepted delivery
// without posting it again.
type confirmer interface {
	ConfirmSent(ctx context.Context, id int64) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.SHA256Hex(body)}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingSubmissionID indicates a message without a usable submission id.
type ErrMissingSubmissionID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingSubmissionID) Error() string { return "missing submission id" }

// ErrProcess indicates redelivery failed after successful parsing.
type ErrProcess struct {
	SubmissionID int64
	RequestID    string
	Err          error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "redeliver submission"
	}
	return "redeliver submission: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Permanent reports whether retrying the message cannot help.
func (e ErrProcess) Permanent() bool { return errors.Is(e.Err, reconcile.ErrPermanent) }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if msg.SubmissionID <= 0 {
		return msg, meta, ErrMissingSubmissionID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// HandleMessage parses a message body and redelivers the submission it names.
func HandleMessage(ctx context.Context, r Redeliverer, body string) error {
	if r == nil {
		return errors.New("redelivery service not configured")
	}
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return Process(ctx, r, msg)
}

// Process redelivers the submission named by an already parsed message.
func Process(ctx context.Context, r Redeliverer, msg queue.Message) error {
	if r == nil {
		return errors.New("redelivery service not configured")
	}
	if msg.RequestID != "" {
		ctx = telemetry.WithRequestID(ctx, msg.RequestID)
	}
	ctx, span := tracing.Tracer().Start(ctx, "redelivery.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.Int64("submission.id", msg.SubmissionID)),
	)
	defer span.End()

	run := r.Redeliver
	if c, ok := r.(confirmer); ok && msg.Reason == string(delivery.ReasonStorage) {
		// The endpoint already accepted this payload.
		run = c.ConfirmSent
	}
	if err := run(ctx, msg.SubmissionID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ErrProcess{SubmissionID: msg.SubmissionID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// Unrecoverable reports whether err means the message should be dropped rather than retried.
func Unrecoverable(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingSubmissionID
		process ErrProcess
	)
	switch {
	case errors.As(err, &empty), errors.As(err, &decode), errors.As(err, &missing):
		return true
	case errors.As(err, &process):
		return process.Permanent()
	default:
		return false
	}
}

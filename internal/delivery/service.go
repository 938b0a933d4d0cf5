package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/shared/tracing"
)

// DefaultTimeout bounds the outbound call when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

const maxDrainBytes = 64 << 10

// Config holds the external endpoint settings.
type Config struct {
	EndpointURL string
	Timeout     time.Duration
}

// Marker records a confirmed delivery on the stored submission.
type Marker interface {
	MarkExternalRequestSent(ctx context.Context, id int64) error
}

// Service forwards stored submissions to the external processing endpoint.
type Service struct {
	cfg        Config
	marker     Marker
	httpClient *http.Client
}

// Option customises a Service.
type Option func(*Service)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewService constructs a delivery Service.
func NewService(cfg Config, marker Marker, opts ...Option) *Service {
	cfg.EndpointURL = strings.TrimSpace(cfg.EndpointURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := &Service{
		cfg:        cfg,
		marker:     marker,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether an endpoint URL is set.
func (s *Service) Configured() bool {
	return s != nil && s.cfg.EndpointURL != ""
}

// Deliver makes one POST to the endpoint and, on a 2xx answer, marks the submission as sent.
// Every failure is reported through the Outcome; nothing is retried here.
func (s *Service) Deliver(ctx context.Context, req Request) Outcome {
	ctx, span := tracing.Tracer().Start(ctx, "delivery.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("submission.id", req.SubmissionID)),
	)
	defer span.End()

	start := time.Now()
	out := s.deliver(ctx, req)
	out.Duration = time.Since(start)
	s.record(ctx, req, out)

	span.SetAttributes(attribute.String("delivery.outcome", string(out.Reason)))
	if out.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", out.StatusCode))
	}
	if !out.OK() && out.Err != nil {
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (s *Service) deliver(ctx context.Context, req Request) Outcome {
	if !s.Configured() {
		return failed(ReasonNotConfigured, errors.New("delivery endpoint not configured"))
	}

	body, err := json.Marshal(NewPayload(req))
	if err != nil {
		return failed(ReasonEncode, fmt.Errorf("encode payload: %w", err))
	}

	status, err := s.post(ctx, body)
	if err != nil {
		if isTimeout(err) {
			return failed(ReasonTimeout, err)
		}
		return failed(ReasonTransport, err)
	}
	if status < 200 || status > 299 {
		return Outcome{
			Reason:     ReasonHTTPStatus,
			StatusCode: status,
			Err:        fmt.Errorf("external service responded with status %d", status),
		}
	}

	if s.marker == nil {
		return Outcome{Reason: ReasonStorage, StatusCode: status, Err: errors.New("delivery marker not configured")}
	}
	if err := s.marker.MarkExternalRequestSent(ctx, req.SubmissionID); err != nil {
		return Outcome{Reason: ReasonStorage, StatusCode: status, Err: fmt.Errorf("mark external request sent: %w", err)}
	}
	return Outcome{Delivered: true, Reason: ReasonDelivered, StatusCode: status}
}

func (s *Service) post(ctx context.Context, body []byte) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.Inject(callCtx, httpReq.Header)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return 0, fmt.Errorf("external service timed out after %s: %w", s.cfg.Timeout, context.DeadlineExceeded)
		}
		return 0, fmt.Errorf("external service request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	return resp.StatusCode, nil
}

func (s *Service) record(ctx context.Context, req Request, out Outcome) {
	metrics.ObserveDelivery(string(out.Reason), out.Duration)

	fields := map[string]any{
		"submission_id": req.SubmissionID,
		"outcome":       string(out.Reason),
		"duration_ms":   float64(out.Duration.Microseconds()) / 1000.0,
	}
	if requestID := telemetry.RequestIDFromContext(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	if out.StatusCode != 0 {
		fields["status"] = out.StatusCode
	}
	if out.OK() {
		telemetry.Info("delivery.sent", fields)
		return
	}
	if out.Err != nil {
		fields["error"] = out.Err.Error()
	}
	telemetry.Error("delivery.failed", fields)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

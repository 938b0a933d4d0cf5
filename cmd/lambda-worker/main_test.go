package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"picture-backend/internal/reconcile"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/workerproc"
)

type fakeRedeliverer map[int64]error

func (f fakeRedeliverer) Redeliver(ctx context.Context, id int64) error { return f[id] }

func TestHandleEventReportsOnlyRetriableFailures(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	r := fakeRedeliverer{
		2: errors.New("timeout"),
		3: fmt.Errorf("%w: rejected", reconcile.ErrPermanent),
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "ok", Body: `{"submissionId":1,"version":1}`},
		{MessageId: "retry", Body: `{"submissionId":2,"version":1}`},
		{MessageId: "permanent", Body: `{"submissionId":3,"version":1}`},
		{MessageId: "garbage", Body: `{nope`},
	}}

	resp := handleEvent(context.Background(), r, event)
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}
}

func TestLambdaWorkerRetriesFailedBootstrap(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	builds := 0
	w := &lambdaWorker{build: func() (workerproc.Redeliverer, error) {
		builds++
		if builds == 1 {
			return nil, errors.New("database unreachable")
		}
		return fakeRedeliverer{}, nil
	}}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"submissionId":1,"version":1}`},
	}}

	resp, err := w.handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected the batch returned to the queue, got %+v", resp)
	}

	resp, err = w.handle(context.Background(), event)
	if err != nil || len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected second invocation to rebuild and succeed, got %+v %v", resp, err)
	}
	_, _ = w.handle(context.Background(), event)
	if builds != 2 {
		t.Fatalf("expected a built service to be reused, got %d builds", builds)
	}
}

package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"picture-backend/internal/bootstrap"
	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/workerproc"
)

// lambdaWorker builds the redelivery service on first use and retries a failed build on the
// next invocation.
type lambdaWorker struct {
	mu    sync.Mutex
	build func() (workerproc.Redeliverer, error)
	r     workerproc.Redeliverer
}

func (w *lambdaWorker) ensure() (workerproc.Redeliverer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.r != nil {
		return w.r, nil
	}
	r, err := w.build()
	if err != nil {
		return nil, err
	}
	w.r = r
	return r, nil
}

func (w *lambdaWorker) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	r, err := w.ensure()
	if err != nil {
		log.Printf("bootstrap error: %v", err)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
	return handleEvent(ctx, r, event), nil
}

func buildRedeliverer() (workerproc.Redeliverer, error) {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		return nil, err
	}
	return app.Reconciler, nil
}

func handleEvent(ctx context.Context, r workerproc.Redeliverer, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		err := workerproc.HandleMessage(ctx, r, record.Body)
		if err == nil {
			continue
		}
		fields := map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()}
		if workerproc.Unrecoverable(err) {
			// Reporting success removes the message; it can never be processed.
			telemetry.Error("worker.redelivery.dropped", fields)
			continue
		}
		telemetry.Error("worker.redelivery.failed", fields)
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	w := &lambdaWorker{build: buildRedeliverer}
	lambda.Start(w.handle)
}

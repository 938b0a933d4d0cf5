package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/caarlos0/env/v11"

	"picture-backend/internal/bootstrap"
	"picture-backend/internal/queue"
	"picture-backend/internal/reconcile"
	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/telemetry"
	"picture-backend/internal/shared/tracing"
	"picture-backend/internal/workerproc"
)

const receiveCountAttr = "ApproximateReceiveCount"

// settings are the worker-only knobs; shared ones live in config.Config.
type settings struct {
	VisibilitySeconds  int `env:"RA_SQS_VISIBILITY_TIMEOUT_SECONDS" envDefault:"120"`
	Concurrency        int `env:"RA_WORKER_CONCURRENCY" envDefault:"4"`
	ShutdownTimeoutSec int `env:"RA_SHUTDOWN_TIMEOUT_SECONDS" envDefault:"40"`
}

func loadSettings() (settings, error) {
	var s settings
	if err := env.Parse(&s); err != nil {
		return settings{}, err
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	return s, nil
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := loadSettings()
	if err != nil {
		log.Fatalf("worker settings: %v", err)
	}
	shutdownTimeout := time.Duration(ws.ShutdownTimeoutSec) * time.Second

	shutdownTracing, err := tracing.Setup(ctx, "picture-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	var wg sync.WaitGroup
	if cfg.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.Reconciler.Run(ctx)
		}()
	} else {
		log.Printf("reconciliation sweep disabled")
	}

	queueURL := strings.TrimSpace(cfg.QueueURL)
	if queueURL == "" {
		log.Printf("RA_SQS_QUEUE_URL empty; running reconciliation sweep only")
	} else {
		awsCfg, err := queue.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, ws.Concurrency, ws.VisibilitySeconds)
		poll(ctx, sqs.NewFromConfig(awsCfg), queueURL, app.Reconciler, ws.Concurrency, ws.VisibilitySeconds, &wg)
	}

	<-ctx.Done()
	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func poll(ctx context.Context, client sqsAPI, queueURL string, r workerproc.Redeliverer, concurrency, visibilitySeconds int, wg *sync.WaitGroup) {
	sem := make(chan struct{}, max(1, concurrency))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName(receiveCountAttr)},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// Let an in-flight delivery finish after shutdown is requested.
				handleMessage(context.WithoutCancel(ctx), client, queueURL, r, m)
			}(msg)
		}
	}
}

func handleMessage(ctx context.Context, client sqsAPI, queueURL string, r workerproc.Redeliverer, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, 0, "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		event := "worker.redelivery.decode_failed"
		var missing workerproc.ErrMissingSubmissionID
		var empty workerproc.ErrEmptyBody
		switch {
		case errors.As(err, &empty):
			event = "worker.redelivery.empty_body"
		case errors.As(err, &missing):
			event = "worker.redelivery.missing_id"
			if missing.RequestID != "" {
				fields["request_id"] = missing.RequestID
			}
		}
		telemetry.Error(event, fields)
		if deleteMessage(ctx, client, queueURL, msg, 0, "") {
			metrics.IncRedeliveryJob(reconcile.ResultDropped)
		}
		return
	}

	telemetry.Info("worker.redelivery.received", baseFields(msg, decoded.SubmissionID, decoded.RequestID))

	if err := workerproc.Process(ctx, r, decoded); err != nil {
		fields := baseFields(msg, decoded.SubmissionID, decoded.RequestID)
		fields["error"] = err.Error()
		if workerproc.Unrecoverable(err) {
			telemetry.Error("worker.redelivery.dropped", fields)
			deleteMessage(ctx, client, queueURL, msg, decoded.SubmissionID, decoded.RequestID)
			return
		}
		// Left on the queue; it becomes visible again after the visibility timeout.
		telemetry.Error("worker.redelivery.failed", fields)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.SubmissionID, decoded.RequestID) {
		telemetry.Info("worker.redelivery.completed", baseFields(msg, decoded.SubmissionID, decoded.RequestID))
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, submissionID int64, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, submissionID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.redelivery.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, submissionID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.redelivery.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, submissionID int64, requestID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if submissionID != 0 {
		fields["submission_id"] = submissionID
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes[receiveCountAttr]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

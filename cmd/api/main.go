package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"picture-backend/internal/bootstrap"
	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/server"
	"picture-backend/internal/shared/tracing"
)

const (
	minShutdownTimeout = 35 * time.Second
	// Room for intake and the redelivery enqueue around the outbound call.
	shutdownMargin = 10 * time.Second
)

// shutdownTimeout lets an in-flight submission finish its delivery before the server exits.
func shutdownTimeout(delivery time.Duration) time.Duration {
	if d := delivery + shutdownMargin; d > minShutdownTimeout {
		return d
	}
	return minShutdownTimeout
}

func main() {
	cfg := config.Load()
	shutdownTracing, err := tracing.Setup(context.Background(), "picture-api", cfg.OTELEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	// In-flight submissions may still be waiting on the delivery timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.DeliveryTimeout()))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}

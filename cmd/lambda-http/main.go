package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"picture-backend/internal/bootstrap"
	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/server/respond"
	"picture-backend/internal/shared/telemetry"
)

type proxyFunc func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// lambdaApp builds the router on first use. A failed build is retried on the next invocation
// so a transient database outage at cold start does not poison the instance.
type lambdaApp struct {
	mu    sync.Mutex
	build func() (*gin.Engine, error)
	proxy proxyFunc
}

func (a *lambdaApp) ensure() (proxyFunc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proxy != nil {
		return a.proxy, nil
	}
	router, err := a.build()
	if err != nil {
		return nil, err
	}
	a.proxy = ginadapter.NewV2(router).ProxyWithContext
	return a.proxy, nil
}

func (a *lambdaApp) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	proxy, err := a.ensure()
	if err != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{
			"error": err.Error(),
			"path":  req.RawPath,
		})
		return unavailable(), nil
	}
	return proxy(ctx, req)
}

func unavailable() events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{
		Code:    "unavailable",
		Message: "service is starting, try again shortly",
	}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func buildRouter() (*gin.Engine, error) {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		return nil, err
	}
	return app.Router, nil
}

func main() {
	a := &lambdaApp{build: buildRouter}
	lambda.Start(a.handle)
}

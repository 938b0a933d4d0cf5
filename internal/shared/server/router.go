package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"picture-backend/internal/services/health"
	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/metrics"
	"picture-backend/internal/shared/server/middleware"
	"picture-backend/internal/shared/server/respond"
)

// RouteRegistrar is implemented by feature handlers.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc)
	RegisterAdminRoutes(rg *gin.RouterGroup)
}

// RouterDeps holds what NewRouter needs to mount the API.
type RouterDeps struct {
	Config      config.Config
	Submissions RouteRegistrar
	// Health defaults to a store-less check.
	Health *health.Service
	// RateLimiter defaults to an in-process limiter.
	RateLimiter middleware.Limiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil, nil)
	}

	metrics.Register()

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		metrics.HTTPMiddleware(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	if deps.Submissions != nil {
		limiter := middleware.RateLimit(middleware.SubmitGroup, middleware.PerMinute(deps.Config.SubmitRatePerMinute), deps.RateLimiter)
		deps.Submissions.RegisterRoutes(api, limiter)

		admin := api.Group("", middleware.AdminAuth(deps.Config.AdminToken, deps.Config.IsDevLike()))
		deps.Submissions.RegisterAdminRoutes(admin)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"picture-backend/internal/delivery"
	"picture-backend/internal/queue"
	"picture-backend/internal/reconcile"
	"picture-backend/internal/services/health"
	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/server"
	"picture-backend/internal/shared/server/middleware"
	"picture-backend/internal/shared/storage/db"
	"picture-backend/internal/submissions"
)

// App holds shared dependencies.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Dialect    db.Dialect
	Queue      queue.Client
	Repo       submissions.Repo
	Intake     *submissions.Intake
	Delivery   *delivery.Service
	Pipeline   *submissions.Pipeline
	Query      *submissions.Query
	Reconciler *reconcile.Service
	Handler    *submissions.Handler
	Redis      *redis.Client
}

// Option customises Build.
type Option func(*buildOptions)

type buildOptions struct {
	queue      queue.Client
	httpClient *http.Client
}

// WithQueue uses q instead of building an SQS client from config.
func WithQueue(q queue.Client) Option {
	return func(o *buildOptions) { o.queue = q }
}

// WithHTTPClient sets the client used for outbound delivery.
func WithHTTPClient(client *http.Client) Option {
	return func(o *buildOptions) { o.httpClient = client }
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, dialect, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient := o.queue
	if queueClient == nil {
		queueClient, err = buildQueue(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.AdminToken) == "" && !cfg.IsDevLike() {
		log.Printf("bootstrap: ADMIN_TOKEN empty; admin routes are disabled")
	}
	if strings.TrimSpace(cfg.DeliveryEndpointURL) == "" {
		log.Printf("bootstrap: DELIVERY_ENDPOINT_URL empty; submissions will be stored but not forwarded")
	}

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Dialect: dialect,
		Queue:   queueClient,
	}
	buildServices(app, o)

	var pinger health.Pinger
	if app.DB != nil {
		pinger = app.DB
	}
	healthSvc := health.NewService(pinger, nil)

	var limiter middleware.Limiter
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		redisLimiter, client, err := middleware.NewRedisLimiterFromURL(url)
		if err != nil {
			return nil, err
		}
		app.Redis = client
		limiter = redisLimiter
		healthSvc.WithLimiter(redisLimiter)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      app.Config,
		Submissions: app.Handler,
		Health:      healthSvc,
		RateLimiter: limiter,
	})
	return app, nil
}

// Close releases the database handle and the Redis client, if any.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("bootstrap: close redis: %v", err)
		}
	}
	if a.DB == nil {
		return nil
	}
	// The Lambda singleton outlives any one App.
	if db.IsLambdaRuntime() {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, db.Dialect, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB   *sql.DB
		dialect = db.DialectFor(cfg.DatabaseURL)
		err     error
	)
	if db.IsLambdaRuntime() && dialect == db.DialectPostgres {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, dialect, err = db.Open(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, "", nil
		}
		return nil, "", err
	}

	// SQLite files are local to the process, so the schema is always brought up to date.
	if dialect == db.DialectSQLite || cfg.AutoMigrate {
		if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
			if cfg.IsDevLike() {
				log.Printf("bootstrap: migrations failed; using in-memory repositories: %v", err)
				_ = sqlDB.Close()
				return nil, "", nil
			}
			return nil, "", fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, dialect, nil
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

func buildServices(app *App, o buildOptions) {
	if app.DB != nil {
		app.Repo = submissions.NewSQLRepo(app.DB, app.Dialect)
	} else {
		app.Repo = submissions.NewMemoryRepo()
	}

	var deliveryOpts []delivery.Option
	if o.httpClient != nil {
		deliveryOpts = append(deliveryOpts, delivery.WithHTTPClient(o.httpClient))
	}
	app.Delivery = delivery.NewService(delivery.Config{
		EndpointURL: app.Config.DeliveryEndpointURL,
		Timeout:     app.Config.DeliveryTimeout(),
	}, app.Repo, deliveryOpts...)

	app.Intake = submissions.NewIntake(app.Repo)
	app.Pipeline = &submissions.Pipeline{
		Intake:   app.Intake,
		Delivery: app.Delivery,
		Queue:    app.Queue,
	}
	app.Query = &submissions.Query{Repo: app.Repo}
	app.Reconciler = &reconcile.Service{
		Repo:      app.Repo,
		Delivery:  app.Delivery,
		BatchSize: app.Config.ReconcileBatchSize,
		Interval:  app.Config.ReconcileInterval,
	}
	app.Handler = submissions.NewHandler(app.Pipeline, app.Query)
}

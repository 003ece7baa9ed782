package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"smsinbox/internal/config"
	"smsinbox/internal/constants"
	"smsinbox/internal/ingestion"
	"smsinbox/internal/logger"
	"smsinbox/internal/query"
	"smsinbox/internal/stats"
	"smsinbox/internal/storage"
	"smsinbox/pkg/bootstrap"
	"smsinbox/pkg/health"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/middleware"
	"smsinbox/pkg/ratelimit"
	"smsinbox/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	metrics        *metrics.Registry
	dbConnector    *bootstrap.DatabaseConnector
	store          storage.Store
	redis          *redis.Client
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	reg := metrics.NewRegistry()
	return &App{
		config:      cfg,
		logger:      log,
		metrics:     reg,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log, reg),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(ctx, a.config.Tracing, constants.ServiceName, constants.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.initServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	store, err := a.dbConnector.OpenStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		// The cache is optional; the service runs without it.
		a.logger.WarnwCtx(ctx, "Redis unavailable, stats cache disabled", "error", err)
		return nil
	}
	a.redis = rdb
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(a.config.Server.Mode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.Default(a.logger, a.metrics)...)

	verifier, err := ingestion.NewVerifier(a.config.Webhook.Secret)
	if err != nil {
		return err
	}

	var cache stats.Cache
	cacheEnabled := a.redis != nil && a.config.Stats.CacheTTL > 0
	if cacheEnabled {
		cache = stats.NewRedisCache(a.redis, a.config.Stats.CacheTTL)
		a.logger.InfowCtx(ctx, "Stats cache enabled", "ttl", a.config.Stats.CacheTTL.String())
	}
	statsService := stats.NewService(a.store, cache, a.logger, a.metrics)

	ingestService := ingestion.NewService(
		verifier,
		ingestion.NewValidator(),
		a.store,
		a.logger,
		a.metrics,
		ingestion.WithListener(statsService),
	)

	var webhookMiddleware []gin.HandlerFunc
	if rl := a.config.Webhook.RateLimit; rl.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             rl.RPS,
			Burst:           rl.Burst,
			CleanupInterval: rl.CleanupInterval,
			MaxAge:          rl.MaxAge,
		}
		webhookMiddleware = append(webhookMiddleware, ratelimit.RateLimitMiddleware(ctx, rateLimitConfig, a.metrics))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	ingestion.NewHandler(ingestService, a.logger, a.config.Webhook.MaxBodyBytes).
		RegisterRoutes(router, webhookMiddleware...)

	queryService := query.NewService(a.store, a.logger, query.Limits{
		Default: a.config.Messages.DefaultLimit,
		Max:     a.config.Messages.MaxLimit,
	})
	query.NewHandler(queryService, a.logger).RegisterRoutes(router)

	stats.NewHandler(statsService, a.logger).RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry(constants.ProbeTimeout)
	healthRegistry.Register(health.NewStoreChecker("database", a.store))
	if cacheEnabled {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	health.NewHandler(healthRegistry, a.logger).RegisterRoutes(router)

	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "HTTP server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	timeout := constants.ShutdownTimeout
	if s := a.config.Server.ShutdownTimeoutSeconds; s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(a.store, a.redis)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"smsinbox/internal/config"
	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/migrations"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/retry"
)

type DatabaseConnector struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Registry
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger, reg *metrics.Registry) *DatabaseConnector {
	return &DatabaseConnector{
		Config:  cfg,
		Logger:  log,
		Metrics: reg,
	}
}

// OpenStore connects to the configured backend, applies migrations when
// database.run_migrations is set and returns the store wrapped with
// instrumentation and, when enabled, the circuit breaker.
func (dc *DatabaseConnector) OpenStore(ctx context.Context) (storage.Store, error) {
	backend, err := dc.Config.Database.ResolveBackend()
	if err != nil {
		return nil, err
	}

	if dc.Config.Database.RunMigrations {
		if err := dc.Migrate(ctx, backend); err != nil {
			return nil, err
		}
	}

	var store storage.Store
	switch backend.Kind {
	case storage.BackendPostgres:
		db, err := dc.InitPostgreSQL(ctx, backend.DSN)
		if err != nil {
			return nil, err
		}
		store = storage.NewPostgresStore(db, storage.WithQueryTimeout(dc.Config.Database.QueryTimeout))
	case storage.BackendSQLite:
		db, err := dc.InitSQLite(ctx, backend.DSN)
		if err != nil {
			return nil, err
		}
		store = storage.NewSQLiteStore(db, storage.WithQueryTimeout(dc.Config.Database.QueryTimeout))
	case storage.BackendMongo:
		client, err := dc.InitMongoDB(ctx, backend.DSN)
		if err != nil {
			return nil, err
		}
		store = storage.NewMongoStore(client.Database(dc.Config.Database.MongoDB.Database), dc.Config.Database.QueryTimeout)
	case storage.BackendMemory:
		dc.Logger.Warn("Using in-memory message store; messages are lost on restart")
		store = storage.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported database backend %q", backend.Kind)
	}

	dc.Logger.Infow("Message store ready", "backend", backend.Kind)

	store = storage.NewInstrumentedStore(store, backend.Kind, dc.Metrics)
	if dc.Config.CircuitBreaker.Enabled {
		store = storage.NewCircuitBreakerStore(store, dc.Config.CircuitBreaker, dc.Metrics)
	}
	return store, nil
}

// Migrate brings the schema of backend up to date. It may run from several
// instances at once.
func (dc *DatabaseConnector) Migrate(ctx context.Context, backend config.Backend) error {
	switch backend.Kind {
	case storage.BackendPostgres:
		return dc.withRetry(ctx, "postgres migrations", func() error {
			return migrations.Up(backend.Kind, backend.DSN, dc.Logger)
		})
	case storage.BackendSQLite:
		if dir := filepath.Dir(backend.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return migrations.Up(backend.Kind, backend.DSN, dc.Logger)
	case storage.BackendMongo:
		client, err := dc.InitMongoDB(ctx, backend.DSN)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.WithoutCancel(ctx))

		if err := migrations.EnsureMongoCollection(ctx, client.Database(dc.Config.Database.MongoDB.Database)); err != nil {
			return err
		}
		dc.Logger.Infow("Migrations applied", "backend", backend.Kind)
		return nil
	default:
		return nil
	}
}

func (dc *DatabaseConnector) retryPolicy() retry.Policy {
	r := dc.Config.Database.ConnectRetry
	return retry.Policy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
		MaxElapsedTime:  r.MaxElapsedTime,
	}
}

func (dc *DatabaseConnector) withRetry(ctx context.Context, what string, fn func() error) error {
	return retry.Do(ctx, dc.retryPolicy(), fn, func(attempt int, err error, next time.Duration) {
		dc.Logger.Warnw("Database not ready, retrying",
			"target", what,
			"attempt", attempt,
			"retry_in", next.String(),
			"error", err,
		)
	})
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if n := dc.Config.Database.MaxOpenConns; n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}

	err = dc.withRetry(ctx, "postgres", func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

// InitSQLite opens path in WAL mode with a single connection.
func (dc *DatabaseConnector) InitSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(storage.SQLiteDriverName, path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	dc.Logger.Infow("SQLite opened successfully", "path", path)
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = dc.withRetry(ctx, "mongodb", func() error {
		return mongoClient.Ping(ctx, nil)
	})
	if err != nil {
		mongoClient.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

// InitRedis returns nil when no Redis host is configured.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Database.Redis
	if !cfg.Enabled() {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(store storage.Store, redis *redis.Client) []error {
	var errs []error

	if redis != nil {
		if err := redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if store != nil {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
	}

	return errs
}

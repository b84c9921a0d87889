package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediationai/mediator/internal/api"
	"github.com/mediationai/mediator/internal/blob"
	"github.com/mediationai/mediator/internal/buildconfig"
	"github.com/mediationai/mediator/internal/config"
	"github.com/mediationai/mediator/internal/events"
	"github.com/mediationai/mediator/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger, err := newLogger(config.LogLevel())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting mediator",
		zap.String("version", buildconfig.Version()),
		zap.String("commit", buildconfig.Commit()))

	ctx := context.Background()
	var deps api.Dependencies

	switch driver := config.StoreDriver(); driver {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres store")
		}

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		if err := store.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("connected to database")
		deps.DB = pool
	case "memory":
		logger.Info("using in-memory store")
	default:
		logger.Fatal("unknown STORE_DRIVER", zap.String("driver", driver))
	}

	if redisURL := config.RedisURL(); redisURL != "" {
		client, err := events.ConnectRedis(ctx, redisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		logger.Info("connected to redis")
		deps.Redis = client
	}

	if config.BlobProvider() == "s3" {
		s3Store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    config.S3Bucket(),
			Region:    config.S3Region(),
			Endpoint:  config.S3Endpoint(),
			AccessKey: config.S3AccessKey(),
			SecretKey: config.S3SecretKey(),
		})
		if err != nil {
			logger.Fatal("failed to initialize s3 attachment store", zap.Error(err))
		}
		logger.Info("using s3 attachment store", zap.String("bucket", config.S3Bucket()))
		deps.Blobs = s3Store
	}

	app := api.NewApp(deps, logger)

	// Start background services
	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services; interrupted resolutions stay pending
	app.Stop()

	logger.Info("server stopped")
}

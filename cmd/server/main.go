package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/pubsub-outbox/internal/api"
	"github.com/ricirt/pubsub-outbox/internal/api/handler"
	"github.com/ricirt/pubsub-outbox/internal/config"
	"github.com/ricirt/pubsub-outbox/internal/db"
	"github.com/ricirt/pubsub-outbox/internal/metrics"
	"github.com/ricirt/pubsub-outbox/internal/ratelimiter"
	"github.com/ricirt/pubsub-outbox/internal/repository"
	"github.com/ricirt/pubsub-outbox/internal/service"
	"github.com/ricirt/pubsub-outbox/internal/transport"
	"github.com/ricirt/pubsub-outbox/internal/worker"
)

// memoryFailureCapacity bounds the failure log when no database is configured.
const memoryFailureCapacity = 1000

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to read .env file", zap.Error(err))
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- error reporting ----
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			AttachStacktrace: true,
			Release:          cfg.Release,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("sentry init error", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
			logger = logger.WithOptions(zap.Hooks(reportToSentry))
		}
	}

	// ---- failure log ----
	ctx := context.Background()
	var (
		repo repository.FailureRepository
		pool *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL, "migrations", logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		repo = repository.NewPgFailureRepository(pool)
	} else {
		logger.Info("DATABASE_URL not set, keeping delivery failures in memory")
		repo = repository.NewMemoryFailureRepository(memoryFailureCapacity)
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := service.NewOutboxService(repo, service.Options{
		MaxBytes:       cfg.OutboxMaxBytes,
		MessageTimeout: cfg.MessageTimeout,
		MemoryLimit:    cfg.OutboxMemoryLimit,
		Hooks:          m.OutboxHooks(),
	}, logger)
	m.TrackStats(svc.Stats)

	sender, err := transport.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create transport", zap.Error(err))
	}
	limiter := ratelimiter.New(cfg.SendRateLimit)

	// ---- workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onSent, onFailed := m.DispatchHooks()
	workers := worker.NewPool(cfg, svc, sender, limiter, logger, worker.MetricHooks{
		OnSent:   onSent,
		OnFailed: onFailed,
	})
	workers.Start(workerCtx)

	// ---- HTTP server ----
	var pinger handler.Pinger
	if pool != nil {
		pinger = pool
	}
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(svc, pinger, reg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new publishes.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the dispatcher and wait for an in-progress send.
	cancelWorkers()
	workers.Wait()

	// 3. Release everything still resident and record it as undelivered.
	svc.Close(shutdownCtx)

	if err := sender.Close(); err != nil {
		logger.Error("transport close error", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}

// reportToSentry forwards error-level log entries to Sentry.
func reportToSentry(e zapcore.Entry) error {
	if e.Level >= zapcore.ErrorLevel {
		sentry.CaptureMessage(e.Message)
	}
	return nil
}

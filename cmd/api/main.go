package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_rotation_backend/internal/events"
	"lead_rotation_backend/internal/exports"
	apphttp "lead_rotation_backend/internal/http"
	"lead_rotation_backend/internal/http/router"
	"lead_rotation_backend/internal/rotation"
	rotationrepo "lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/internal/scheduler"
	"lead_rotation_backend/internal/stats"
	statsrepo "lead_rotation_backend/internal/stats/repository"
	statsservice "lead_rotation_backend/internal/stats/service"
	"lead_rotation_backend/internal/webhook"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/db"
	"lead_rotation_backend/platform/lock"
	"lead_rotation_backend/platform/logger"
	"lead_rotation_backend/platform/redisconn"
	"lead_rotation_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout  = 10 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrateOnStart {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Redis is optional: without it the rotation relies on row locks, stats
	// are computed on every request and async intake runs inline.
	rdb, closeRedis := initRedis(ctx, cfg, log)
	if closeRedis != nil {
		defer closeRedis()
	}

	var (
		locker     lock.Locker
		statsCache statsservice.Cache
		enqueuer   webhook.Enqueuer
	)
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, "rotation:lock:", cfg.GetRotationLockTTL(), lockRetryBackoff)
		statsCache = statsservice.NewRedisCache(rdb)

		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
		} else {
			defer func() { _ = client.Close() }()
			enqueuer = client
		}
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	rotationStore := rotationrepo.New(pool, cfg.GetRotationLockTimeout())
	rotationModule := rotation.NewModule(rotationStore, locker, eventBus, val, cfg, log)

	statsModule := stats.NewModule(statsrepo.New(pool), statsCache, cfg, log)
	statsModule.RegisterHandlers(eventBus, log)

	exportsModule := exports.NewModule(exports.NewRepository(pool))

	webhookModule := webhook.NewModule(webhook.NewRepository(pool), rotationModule.Service(), enqueuer, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:       cfg,
		Logger:       log,
		Dependencies: healthDependencies(pool, rdb),
		Modules: []apphttp.Module{
			rotationModule,
			statsModule,
			exportsModule,
			webhookModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; distributed lock, stats cache and async intake disabled")
		return nil, nil
	}

	var rdb *redis.Client
	if err := withRetry(ctx, log, "redis connection", 3, time.Second, func() error {
		c, err := redisconn.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis; continuing without it", "error", err)
		return nil, nil
	}

	log.Info("redis connection established")
	return rdb, func() { _ = rdb.Close() }
}

// healthDependencies probes Postgres as required and Redis as optional, since
// the API keeps assigning under the store transaction alone when Redis is down.
func healthDependencies(pool *pgxpool.Pool, rdb *redis.Client) []apphttp.Dependency {
	deps := []apphttp.Dependency{{Name: "postgres", Check: db.NewPoolAdapter(pool)}}
	if rdb != nil {
		deps = append(deps, apphttp.Dependency{
			Name:     "redis",
			Check:    apphttp.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			Optional: true,
		})
	}
	return deps
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

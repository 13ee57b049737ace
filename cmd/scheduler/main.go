package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_rotation_backend/internal/events"
	rotationrepo "lead_rotation_backend/internal/rotation/repository"
	rotationservice "lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/internal/scheduler"
	"lead_rotation_backend/internal/stats"
	statsrepo "lead_rotation_backend/internal/stats/repository"
	statsservice "lead_rotation_backend/internal/stats/service"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/db"
	"lead_rotation_backend/platform/lock"
	"lead_rotation_backend/platform/logger"
	"lead_rotation_backend/platform/redisconn"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const lockRetryBackoff = 25 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var rdb *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		c, err := redisconn.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	// Worker-side assignments invalidate the same stats cache the API reads.
	statsModule := stats.NewModule(statsrepo.New(pool), statsservice.NewRedisCache(rdb), cfg, log)
	statsModule.RegisterHandlers(eventBus, log)

	locker := lock.NewRedisLocker(rdb, "rotation:lock:", cfg.GetRotationLockTTL(), lockRetryBackoff)
	rotation := rotationservice.New(rotationrepo.New(pool, cfg.GetRotationLockTimeout()), locker, eventBus, cfg, log)

	worker, err := scheduler.NewWorker(cfg, rotation, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

// Package lock provides per-key mutual exclusion across service instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// caller's deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func(ctx context.Context) error

// Locker takes exclusive, expiring locks on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// RedisLocker implements Locker with bsm/redislock.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	prefix  string
}

// NewRedisLocker creates a Locker whose locks expire after ttl if the holder
// dies. Acquire polls every backoff until the context deadline.
func NewRedisLocker(rdb redis.UniversalClient, prefix string, ttl, backoff time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: backoff,
		prefix:  prefix,
	}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	held, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotAcquired
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrNotAcquired
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func(releaseCtx context.Context) error {
		err := held.Release(releaseCtx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}

// Noop never blocks. It is used when Redis is not configured and the store
// provides its own exclusion.
type Noop struct{}

// Acquire returns immediately.
func (Noop) Acquire(context.Context, string) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = Noop{}
)

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultLockTTL = 30 * time.Second

var ErrLockNotObtained = errors.New("could not obtain posting lock")

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// PostingLocker serializes ledger posting per tenant across instances.
type PostingLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
	logger *logrus.Logger
}

func NewPostingLocker(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *PostingLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &PostingLocker{
		locker: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
		logger: logger,
	}
}

func lockKey(tenantID string) string {
	return fmt.Sprintf("posting:%s", tenantID)
}

// Lock blocks until the tenant's posting lock is held or retries run out.
// The returned func releases it.
func (l *PostingLocker) Lock(ctx context.Context, tenantID string) (func(), error) {
	key := lockKey(tenantID)
	lock, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: tenant %s", ErrLockNotObtained, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithFields(logrus.Fields{
				"component": "posting_lock",
				"tenant_id": tenantID,
			}).WithError(err).Warn("failed to release posting lock")
		}
	}, nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/redis"
)

// ErrJobRunning is returned when another instance holds the job lock
var ErrJobRunning = errors.New("job is already running on another instance")

// RedisLocker is the subset of *redis.Client used for job locks
type RedisLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*redis.Lock, error)
}

// AdvisoryLocker is the subset of *database.PostgresDB used for job locks
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

// JobLock keeps a batch job to one running instance. Redis is tried first;
// when it is unreachable the Postgres advisory lock is used.
type JobLock struct {
	redis    RedisLocker
	advisory AdvisoryLocker
	ttl      time.Duration
	log      *logger.Logger
}

// NewJobLock creates a JobLock. Either locker may be nil; with both nil
// every Acquire succeeds.
func NewJobLock(r RedisLocker, a AdvisoryLocker, ttl time.Duration, log *logger.Logger) *JobLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &JobLock{redis: r, advisory: a, ttl: ttl, log: log}
}

// Acquire takes the lock for job. The returned func releases it.
func (l *JobLock) Acquire(ctx context.Context, job string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.redis != nil {
		lock, err := l.redis.AcquireLock(ctx, redis.LockKey(job), l.ttl)
		switch {
		case err == nil:
			return func() {
				if err := lock.Release(context.Background()); err != nil {
					l.log.Warn("Failed to release job lock", zap.String("job", job), zap.Error(err))
				}
			}, nil
		case errors.Is(err, redis.ErrLockHeld):
			return nil, ErrJobRunning
		default:
			l.log.Warn("Redis job lock unavailable, falling back to advisory lock",
				zap.String("job", job), zap.Error(err))
		}
	}

	if l.advisory == nil {
		return func() {}, nil
	}
	release, ok, err := l.advisory.TryAdvisoryLock(ctx, advisoryKey(job))
	if err != nil {
		return nil, fmt.Errorf("failed to take advisory lock for %s: %w", job, err)
	}
	if !ok {
		return nil, ErrJobRunning
	}
	return release, nil
}

func advisoryKey(job string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("job:lock:" + job))
	return int64(h.Sum64())
}

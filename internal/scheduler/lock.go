package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

// DefaultLockTTL bounds how long a crashed process can hold a job lock.
const DefaultLockTTL = 2 * time.Hour

// Locker is a lock shared by every process using the same stores.
type Locker interface {
	TryLock(ctx context.Context, job string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, job, token string) error
}

// acquireLock takes the cross-process lock of job. When the lock store is
// unreachable the job proceeds with local exclusion only.
func acquireLock(ctx context.Context, l Locker, job string, ttl time.Duration, log logger.Logger) (func(), bool) {
	if l == nil {
		return func() {}, true
	}

	token, ok, err := l.TryLock(ctx, job, ttl)
	if err != nil {
		log.Warn("failed to acquire job lock, continuing without it",
			logger.String("job", job),
			logger.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.Release(ctx, job, token); err != nil {
			log.Warn("failed to release job lock",
				logger.String("job", job),
				logger.Error(err))
		}
	}, true
}

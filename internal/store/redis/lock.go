package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker provides per job run locks shared by every process using the same
// Redis, so two instances never sweep or back up at the same time.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func (s *Store) Locker() *Locker {
	return &Locker{client: s.client, script: redis.NewScript(lockReleaseScript)}
}

// TryLock takes the lock of job for ttl. ok is false when another holder has it.
func (l *Locker) TryLock(ctx context.Context, job string, ttl time.Duration) (token string, ok bool, err error) {
	if job == "" {
		return "", false, errors.New("lock job is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, LockKey(job), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release drops the lock only if token still owns it.
func (l *Locker) Release(ctx context.Context, job, token string) error {
	if job == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{LockKey(job)}, token).Err()
}

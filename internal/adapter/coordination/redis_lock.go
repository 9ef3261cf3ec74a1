package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockKeyPrefix = "fleetwatch:lock:"

// deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a per-key lease lock shared by every API instance
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger logger.Logger
}

// NewRedisLocker creates a locker whose leases expire after ttl. Acquire gives
// up with domain.ErrLockNotAcquired after wait.
func NewRedisLocker(client redis.Cmdable, ttl, wait time.Duration, log logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		logger: log,
	}
}

// Acquire takes the lease for key
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, domain.ErrLockNotAcquired
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLocker) releaser(redisKey, token string) func() {
	return func() {
		// the request context may already be cancelled here
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn(ctx, "failed to release lock", map[string]interface{}{
				"key":   redisKey,
				"error": err.Error(),
			})
		}
	}
}

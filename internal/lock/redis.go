package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisRetryInterval = 50 * time.Millisecond

// Released only by the holder: the token check stops a slow worker from
// deleting a lock that already expired and was re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes work per key across processes. Acquisition is a
// SetNX poll bounded by waitTimeout (zero or negative: bounded only by
// the caller's context); ttl bounds how long a crashed holder can block
// others.
type RedisLocker struct {
	client      *redis.Client
	waitTimeout time.Duration
	ttl         time.Duration
}

func NewRedisLocker(client *redis.Client, waitTimeout, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:      client,
		waitTimeout: waitTimeout,
		ttl:         ttl,
	}
}

func (r *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.New().String()

	waitCtx := ctx
	if r.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.waitTimeout)
		defer cancel()
	}

	for {
		ok, err := r.client.SetNX(waitCtx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if waitCtx.Err() != nil {
				return ErrTimeout
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			break
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrTimeout
		case <-time.After(redisRetryInterval):
		}
	}

	defer r.release(key, token)

	return fn(ctx)
}

func (r *RedisLocker) release(key, token string) {
	// own context: the caller's may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = releaseScript.Run(ctx, r.client, []string{key}, token).Result()
}

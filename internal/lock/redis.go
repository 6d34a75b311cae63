package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on "<prefix>:<name>".
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	opts   Options
}

func NewRedisLocker(rdb *redis.Client, prefix string, opts Options) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, opts: opts.withDefaults()}
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Lease, error) {
	key := l.prefix + ":" + name
	token := uuid.NewString()
	deadline := time.Now().Add(l.opts.Wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
		if ok {
			return &redisLease{rdb: l.rdb, key: key, token: token}, nil
		}
		wait := l.opts.backoff()
		if time.Now().Add(wait).After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", name, ErrNotAcquired)
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("unlock %s: %w", l.key, ErrNotHeld)
	}
	return nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based Locker shared by every engine instance.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	retry     time.Duration
}

func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace, retry: 50 * time.Millisecond}
}

func (r *Redis) key(k string) string {
	return r.namespace + ":lock:" + k
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	tok := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), tok, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return r.unlocker(key, tok), true, nil
}

func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		unlock, ok, err := r.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Redis) unlocker(key, tok string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release on a fresh one.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, tok).Err(); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to release redis lock")
			}
		})
	}
}

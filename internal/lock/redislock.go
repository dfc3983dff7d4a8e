// Package lock serializes critical sections across API replicas, most
// importantly checkout, with a Redis SetNX lease.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when the stored token matches, so a
// holder whose lease already expired cannot free somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker hands out Redis-backed leases. Leases expire on their own, so a
// crashed holder cannot wedge the key forever.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

type lease struct {
	r     *redis.Client
	key   string
	token string
}

func (l lease) release() {
	// A fresh context so a cancelled caller still frees the key.
	_ = releaseScript.Run(context.Background(), l.r, []string{l.key}, l.token).Err()
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return lease{}, false, err
	}
	return lease{r: l.R, key: key, token: token}, true, nil
}

// WithLock runs fn while holding the lease for key, retrying acquisition on
// RetryBackoff until the context is cancelled. The lease is released when fn
// returns, error or not.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	for {
		held, ok, err := l.acquire(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			defer held.release()
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

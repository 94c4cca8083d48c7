// Package ratelimit serializes hot-card mutations with a short redis lease.
// The lock is an optimization: it reduces optimistic-version conflicts under
// contention but is never relied on for correctness. When redis is not
// configured every call succeeds immediately.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 3 * time.Second

// releaseScript deletes the key only when it still holds our token, so an
// expired lease re-acquired by another writer is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, ttl: defaultLeaseTTL}
}

// Acquire takes a lease on key. It returns a release func and whether the
// lease was obtained. A nil client always grants the lease with a no-op
// release.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

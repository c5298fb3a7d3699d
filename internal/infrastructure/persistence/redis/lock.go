package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a best-effort distributed lock on a single key. Several worker
// processes share one queue payload; the lock keeps their drains apart.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration
	token  string
}

// NewLock creates a lock named name that expires after ttl.
func NewLock(client *Client, name string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: PrefixLock + name, ttl: ttl}
}

// Key returns the Redis key of the lock.
func (l *Lock) Key() string {
	return l.key
}

// TryAcquire takes the lock if it is free.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lock if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return ErrLockNotHeld
	}
	n, err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Int()
	l.token = ""
	if err != nil {
		return fmt.Errorf("redis: release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

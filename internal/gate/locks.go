package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker enforces at most one in-flight gated action per key.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// InflightKey builds the lock key for one (actor, kind, resource) triple.
func InflightKey(actorID int64, kind ActionKind, resourceID string) string {
	return fmt.Sprintf("gate:inflight:%d:%s:%s", actorID, kind, resourceID)
}

// RedisLocker implements Locker with SET NX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryAcquire attempts to take the lock without blocking.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops the lock.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

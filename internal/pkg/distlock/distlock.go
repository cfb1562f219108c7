package distlock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single-flight guard for one key.
// A lock instance is used by one goroutine; every caller creates its own.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Locker hands out locks for keys.
type Locker interface {
	NewLock(key string, ttl time.Duration) DistLock
}

// NewLocker picks the best available backend. With a Redis client, locks hold
// across processes. Without one they only exclude goroutines of this process.
func NewLocker(redisClient *redis.Client) Locker {
	if redisClient != nil {
		return &RedisLocker{Client: redisClient}
	}
	return NewLocalLocker()
}

// RedisLocker creates RedisLock instances on a shared client.
type RedisLocker struct {
	Client *redis.Client
}

func (l *RedisLocker) NewLock(key string, ttl time.Duration) DistLock {
	return NewRedisLock(l.Client, key, ttl)
}

// =============================================================================
// In-process lock (fallback when Redis is unavailable)
// =============================================================================

// LocalLocker tracks held keys in memory. Keys expire after their TTL so a
// stuck holder cannot block a campaign forever.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
}

type localHold struct {
	owner   *LocalLock
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold)}
}

func (l *LocalLocker) NewLock(key string, ttl time.Duration) DistLock {
	return &LocalLock{locker: l, key: "lock:" + key, ttl: ttl}
}

// LocalLock implements DistLock against a LocalLocker.
type LocalLock struct {
	locker *LocalLocker
	key    string
	ttl    time.Duration
}

func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	now := time.Now()
	if h, ok := l.locker.held[l.key]; ok && now.Before(h.expires) {
		return false, nil
	}
	l.locker.held[l.key] = localHold{owner: l, expires: now.Add(l.ttl)}
	return true, nil
}

func (l *LocalLock) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if h, ok := l.locker.held[l.key]; ok && h.owner == l {
		delete(l.locker.held, l.key)
	}
	return nil
}

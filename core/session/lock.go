package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/m3rciful/scenariobot/core/logger"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates one session across several bot replicas.
type DistributedLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

const distributedLockTTL = 60 * time.Second

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locker serializes work per session key. Entries are reference counted and dropped when unused.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	distributed DistributedLocker
}

// NewLocker returns a Locker. A non-nil distributed locker is taken after the local lock.
func NewLocker(distributed DistributedLocker) *Locker {
	return &Locker{locks: make(map[string]*lockEntry), distributed: distributed}
}

func (l *Locker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// WithLock runs fn while holding the lock for key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := l.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(key)
	}()

	if l.distributed != nil {
		unlock, err := l.distributed.Lock(ctx, key, distributedLockTTL)
		if err != nil {
			return fmt.Errorf("acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even when ctx is already done.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, logger.CompSession, "lock.release_failed",
					slog.String("status", "fail"),
					slog.String("session_key", key),
					slog.Any("err", err),
				)
			}
		}()
	}
	return fn(ctx)
}

// active reports how many keys currently hold an entry.
func (l *Locker) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// ErrLockAcquire is returned when a distributed lock could not be taken.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLocker implements DistributedLocker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

// NewRedisLocker builds a RedisLocker; lock keys are prefix+"lock:"+key.
func NewRedisLocker(client *backend.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLocker{client: client, prefix: prefix, poll: 50 * time.Millisecond}
}

// Lock polls until the lock is taken or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := strconv.FormatInt(time.Now().UnixNano(), 36)

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}

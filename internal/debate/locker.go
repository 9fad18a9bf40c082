package debate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Locker serializes work on a key. The returned unlock func is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemoryLocker is a process local Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memLock
}

type memLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*memLock)
	}
	ml, ok := l.locks[key]
	if !ok {
		ml = &memLock{ch: make(chan struct{}, 1)}
		l.locks[key] = ml
	}
	ml.refs++
	l.mu.Unlock()

	select {
	case ml.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ml.ch
				l.release(key, ml)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, ml)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) release(key string, ml *memLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ml.refs--
	if ml.refs == 0 {
		delete(l.locks, key)
	}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// ErrLockTimeout is returned when a Redis lock could not be taken before the
// wait limit elapsed.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// RedisLocker takes locks shared by every instance using SET NX PX with a
// random token. A held lock is renewed every TTL/3 until it is released,
// so it only expires after TTL if the holder dies.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
	logger zerolog.Logger
}

// NewRedisLocker creates a RedisLocker. Zero durations take defaults.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 15 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retry: 25 * time.Millisecond, wait: wait, logger: zerolog.Nop()}
}

// WithLogger sets the logger used for renew and release failures.
func (l *RedisLocker) WithLogger(logger zerolog.Logger) *RedisLocker {
	l.logger = logger.With().Str("component", "redis_locker").Logger()
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("Redis client not available")
	}

	lockKey := "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lockKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			res, err := releaseScript.Run(releaseCtx, l.rdb, []string{lockKey}, token).Int64()
			if err != nil {
				l.logger.Error().Err(err).Str("key", key).Msg("failed to release lock")
				return
			}
			if res == 0 {
				l.logger.Warn().Str("key", key).Msg("lock was lost before release")
			}
		})
	}, nil
}

// keepAlive extends the lock while the token still owns it. It stops when
// stop is closed or ownership is lost.
func (l *RedisLocker) keepAlive(lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		res, err := renewScript.Run(ctx, l.rdb, []string{lockKey}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Warn().Err(err).Str("key", lockKey).Msg("failed to renew lock")
			continue
		}
		if res == 0 {
			l.logger.Warn().Str("key", lockKey).Msg("lock lost while held")
			return
		}
	}
}

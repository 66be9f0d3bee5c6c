// Package runlock serialises scheduled pipeline runs across hosts. The
// database lock taken by each run already guards a single store; this lock
// keeps two schedulers from starting the same run at all.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrLockNotAcquired is returned when another holder owns the key.
	ErrLockNotAcquired = errors.New("runlock: lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was
	// taken over.
	ErrLockNotHeld = errors.New("runlock: lock not held")
)

// DefaultTTL bounds how long a crashed holder blocks the key.
const DefaultTTL = 2 * time.Hour

// DefaultPrefix namespaces lock keys in Redis.
const DefaultPrefix = "lock:"

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// client is the subset of *redis.Client the locker uses.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis is a Locker backed by SET NX with a random token per lease.
type Redis struct {
	c      client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis connects to addr and returns a locker and a close function.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, log *zap.Logger) (*Redis, func() error, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("runlock: ping %s: %w", addr, err)
	}
	return newRedis(rdb, ttl, log), rdb.Close, nil
}

func newRedis(c client, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{c: c, prefix: DefaultPrefix, ttl: ttl, log: log}
}

// Acquire implements Locker. It does not wait: a held key fails fast with
// ErrLockNotAcquired.
func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	k := r.prefix + key
	token := uuid.NewString()
	ok, err := r.c.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("runlock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("runlock: %s: %w", key, ErrLockNotAcquired)
	}
	r.log.Debug("lock acquired", zap.String("key", k), zap.Duration("ttl", r.ttl))
	return &redisLease{r: r, key: k, token: token}, nil
}

type redisLease struct {
	r     *Redis
	key   string
	token string
}

// Release deletes the key only while it still carries this lease's token.
func (l *redisLease) Release(ctx context.Context) error {
	n, err := l.r.c.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("runlock: release %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("runlock: %s: %w", l.key, ErrLockNotHeld)
	}
	l.r.log.Debug("lock released", zap.String("key", l.key))
	return nil
}

// Nop grants every lease. It is used when no Redis address is configured.
type Nop struct{}

// Acquire implements Locker.
func (Nop) Acquire(context.Context, string) (Lease, error) { return nopLease{}, nil }

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }

// With runs fn while holding key. The release error is joined with fn's.
func With(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) (err error) {
	lease, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, lease.Release(context.WithoutCancel(ctx)))
	}()
	return fn(ctx)
}

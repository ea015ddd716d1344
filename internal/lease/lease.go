// Package lease gives background jobs a cluster-wide mutual exclusion so that
// only one replica relays the outbox or sweeps stock at a time.
package lease

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pantry/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrEmptyKey = errors.New("lease key is empty")

// Release gives up a held lease.
type Release func(ctx context.Context) error

// Lease grants exclusive ownership of a key for ttl. ok is false when another
// holder owns the key.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Client *redis.Client `optional:"true"`
}

// New returns a redis-backed lease when a client is configured and a
// process-local one otherwise.
func New(p Params) Lease {
	log := p.Log.Named("lease")
	if p.Client == nil {
		log.Info("redis not configured; using local lease")
		return NewLocal()
	}
	return NewRedis(p.Client, p.Config.AppName)
}

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

type redisLease struct {
	locker *redislock.Client
	prefix string
}

func NewRedis(client redislock.RedisClient, prefix string) Lease {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pantry"
	}
	return &redisLease{
		locker: redislock.New(client),
		prefix: prefix,
	}
}

func (l *redisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	lock, err := l.locker.Obtain(ctx, "lease:"+l.prefix+":"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, true, nil
}

// localLease serialises holders inside one process.
type localLease struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() Lease {
	return &localLease{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (l *localLease) Acquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.Equal(expiry) {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Store adapts a ulule limiter store to Limiter. It counts in fixed windows.
type Store struct {
	Store limiter.Store
}

// NewMemoryStore returns an in-process Store, suitable for single instance deployments.
func NewMemoryStore(prefix string) Store {
	return Store{Store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: time.Minute,
	})}
}

// NewRedisStore returns a Store shared across instances through Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (Store, error) {
	st, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Store{}, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return Store{Store: st}, nil
}

// Allow implements Limiter.
func (s Store) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if s.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	l := limiter.New(s.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := l.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}

// New picks a Limiter for backend: "memory", "redis" (fixed window through
// ulule) or "sliding" (Redis sorted sets). Redis backends fall back to memory
// when no client is configured.
func New(backend string, rdb *redis.Client, prefix string) (Limiter, error) {
	switch backend {
	case "sliding":
		if rdb != nil {
			return SlidingRedis{Client: rdb, Prefix: prefix}, nil
		}
	case "redis":
		if rdb != nil {
			return NewRedisStore(rdb, prefix)
		}
	case "", "memory":
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", backend)
	}
	return NewMemoryStore(prefix), nil
}

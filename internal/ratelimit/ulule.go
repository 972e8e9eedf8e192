package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed window limiter on top of a ulule/limiter store. It guards
// the write endpoints (checkout confirm, payment links).
type Fixed struct {
	Store  limiter.Store
	Prefix string
}

// NewRedisStore builds a ulule store sharing the session Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// NewMemoryStore builds a process-local store, used when Redis is absent.
func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

// Allow implements Allower.
func (f Fixed) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	l := limiter.New(f.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := l.Get(ctx, f.Prefix+key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}

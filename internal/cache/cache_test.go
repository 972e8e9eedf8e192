package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/petlog-console/internal/cache"
)

type plan struct {
	Code  string `json:"code"`
	Price int64  `json:"price"`
}

func newCache(t *testing.T, ttl time.Duration) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, ttl), mr
}

func TestRememberLoadsOnce(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	calls := 0
	load := func(context.Context) ([]plan, error) {
		calls++
		return []plan{{Code: "basic", Price: 99_000}}, nil
	}

	first, err := cache.Remember(context.Background(), c, "plans:h-1", load)
	require.NoError(t, err)
	second, err := cache.Remember(context.Background(), c, "plans:h-1", load)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Remember(context.Background(), c, "plans:h-1", load)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRememberDoesNotCacheFailures(t *testing.T) {
	c, _ := newCache(t, time.Minute)
	boom := errors.New("upstream down")
	_, err := cache.Remember(context.Background(), c, "price", func(context.Context) (int64, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	v, err := cache.Remember(context.Background(), c, "price", func(context.Context) (int64, error) { return 40_000, nil })
	require.NoError(t, err)
	require.Equal(t, int64(40_000), v)
}

func TestDisabledCacheAlwaysLoads(t *testing.T) {
	c := cache.New(nil, time.Minute)
	calls := 0
	for range 2 {
		_, err := cache.Remember(context.Background(), c, "k", func(context.Context) (int, error) { calls++; return 1, nil })
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)
	ok, err := c.GetJSON(context.Background(), "k", new(int))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDelete(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	require.NoError(t, c.SetJSON(context.Background(), "k", plan{Code: "pro"}))
	require.True(t, mr.Exists("petlog:cache:k"))
	require.NoError(t, c.Delete(context.Background(), "k"))
	require.False(t, mr.Exists("petlog:cache:k"))
}

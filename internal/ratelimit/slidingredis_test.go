package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newQuoteLimiter(t *testing.T, now *time.Time) (Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "petlog:rl:quotes:", Now: func() time.Time { return *now }}, mr
}

func TestLimiterSlidesOverQuoteSelections(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l, mr := newQuoteLimiter(t, &now)
	ctx := context.Background()
	window := 10 * time.Second

	ok, remaining, reset, err := l.Allow(ctx, "session:s-1", window, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, remaining)
	require.WithinDuration(t, now.Add(window), reset, 0)

	now = now.Add(4 * time.Second)
	ok, remaining, _, err = l.Allow(ctx, "session:s-1", window, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, remaining)

	now = now.Add(time.Second)
	ok, _, reset, err = l.Allow(ctx, "session:s-1", window, 2)
	require.NoError(t, err)
	require.False(t, ok)
	require.WithinDuration(t, time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC), reset, 0, "a slot frees when the first selection ages out")
	members, err := mr.ZMembers("petlog:rl:quotes:session:s-1")
	require.NoError(t, err)
	require.Len(t, members, 2, "rejected selections are not recorded")

	now = now.Add(5 * time.Second)
	ok, remaining, _, err = l.Allow(ctx, "session:s-1", window, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, remaining)

	ok, _, _, err = l.Allow(ctx, "session:s-2", window, 2)
	require.NoError(t, err)
	require.True(t, ok, "sessions are limited independently")
}

func TestLimiterDisabledWithoutLimit(t *testing.T) {
	ok, remaining, _, err := Limiter{}.Allow(context.Background(), "session:s-1", time.Second, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, remaining)
}

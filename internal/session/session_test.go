package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject("17").
		IssuedAt(time.Now()).
		Expiration(exp).
		Claim("hotel_id", 3).
		Claim("role", "owner").
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("upstream-secret")))
	require.NoError(t, err)
	return string(signed)
}

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Manager{Store: RedisStore{Client: client}, MaxTTL: 24 * time.Hour}, mr
}

func TestStartLoadEnd(t *testing.T) {
	m, mr := newManager(t)
	ctx := context.Background()

	var torn []string
	m.OnEnd(func(_ context.Context, s Session) { torn = append(torn, s.ID) })

	s, err := m.Start(ctx, "Bearer "+signedToken(t, time.Now().Add(2*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, "17", s.UserID)
	require.Equal(t, "3", s.HotelID)
	require.Equal(t, "owner", s.Role)
	require.True(t, mr.Exists("petlog:session:"+s.ID))
	ttl := mr.TTL("petlog:session:" + s.ID)
	require.Greater(t, ttl, time.Hour)
	require.LessOrEqual(t, ttl, 2*time.Hour)

	loaded, err := m.Load(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s.Token, loaded.Token)

	require.NoError(t, m.End(ctx, s.ID))
	require.Equal(t, []string{s.ID}, torn)
	_, err = m.Load(ctx, s.ID)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestStartRejectsBadTokens(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Start(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Start(context.Background(), signedToken(t, time.Now().Add(-time.Minute)))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTTLIsCapped(t *testing.T) {
	m, mr := newManager(t)
	m.MaxTTL = time.Hour
	s, err := m.Start(context.Background(), signedToken(t, time.Now().Add(48*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, time.Hour, mr.TTL("petlog:session:"+s.ID))
}

func TestLoadDropsExpiredSessions(t *testing.T) {
	m, mr := newManager(t)
	now := time.Now()
	m.Now = func() time.Time { return now }
	var ended []string
	m.OnEnd(func(_ context.Context, s Session) { ended = append(ended, s.ID) })
	s, err := m.Start(context.Background(), signedToken(t, now.Add(time.Hour)))
	require.NoError(t, err)

	m.Now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = m.Load(context.Background(), s.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists("petlog:session:"+s.ID))
	require.Equal(t, []string{s.ID}, ended)
}

func TestEndUnknownSessionRunsHooks(t *testing.T) {
	m, _ := newManager(t)
	called := false
	m.OnEnd(func(_ context.Context, s Session) { called = s.ID == "ghost" })
	require.NoError(t, m.End(context.Background(), "ghost"))
	require.True(t, called)
}

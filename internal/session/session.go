// Package session holds the explicit operator session: the API bearer token
// and the hotel it acts for. Sessions are created at login handoff, persisted
// in Redis, and torn down at logout; nothing is kept in package state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidToken is returned when the bearer token cannot be parsed.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrTokenExpired is returned when the bearer token is already expired.
	ErrTokenExpired = errors.New("session: token expired")
)

// Session is one signed-in operator.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	HotelID   string    `json:"hotel_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Public is the session view returned to the dashboard; it omits the token.
func (s Session) Public() map[string]any {
	return map[string]any{
		"id":         s.ID,
		"user_id":    s.UserID,
		"hotel_id":   s.HotelID,
		"role":       s.Role,
		"expires_at": s.ExpiresAt,
	}
}

// TeardownFunc runs after a session ends, releasing per-session view state.
type TeardownFunc func(ctx context.Context, s Session)

// Manager creates, restores and ends sessions.
type Manager struct {
	Store      Store
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Now        func() time.Time

	mu    sync.RWMutex
	hooks []TeardownFunc
}

// OnEnd registers fn to run whenever a session ends.
func (m *Manager) OnEnd(fn TeardownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start opens a session for the API access token issued at login. The token
// is decoded but not verified; the API remains the verifier on every call.
func (m *Manager) Start(ctx context.Context, token string) (Session, error) {
	if m.Store == nil {
		return Session{}, errors.New("session: store not configured")
	}
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	claims, err := parseClaims(token)
	if err != nil {
		return Session{}, err
	}
	now := m.now()
	ttl := m.defaultTTL()
	if !claims.expiresAt.IsZero() {
		if !claims.expiresAt.After(now) {
			return Session{}, ErrTokenExpired
		}
		ttl = claims.expiresAt.Sub(now)
	}
	if limit := m.MaxTTL; limit > 0 && ttl > limit {
		ttl = limit
	}
	s := Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    claims.subject,
		HotelID:   claims.hotelID,
		Role:      claims.role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.Store.Save(ctx, s, ttl); err != nil {
		return Session{}, fmt.Errorf("session: persist: %w", err)
	}
	return s, nil
}

// Load restores a persisted session. An expired session is deleted and its
// teardown hooks run before ErrNotFound is returned.
func (m *Manager) Load(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" || m.Store == nil {
		return Session{}, ErrNotFound
	}
	s, err := m.Store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(m.now()) {
		_ = m.Store.Delete(ctx, id)
		m.teardown(ctx, s)
		return Session{}, ErrNotFound
	}
	return s, nil
}

// End deletes the session and runs the teardown hooks. Ending an unknown
// session is not an error.
func (m *Manager) End(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	var s Session
	if id != "" && m.Store != nil {
		loaded, err := m.Store.Load(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		s = loaded
	}
	if m.Store != nil {
		if err := m.Store.Delete(ctx, id); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
	}
	if s.ID == "" {
		s.ID = id
	}
	m.teardown(ctx, s)
	return nil
}

func (m *Manager) teardown(ctx context.Context, s Session) {
	m.mu.RLock()
	hooks := append([]TeardownFunc(nil), m.hooks...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, s)
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) defaultTTL() time.Duration {
	if m.DefaultTTL > 0 {
		return m.DefaultTTL
	}
	return 12 * time.Hour
}

type tokenClaims struct {
	subject   string
	hotelID   string
	role      string
	expiresAt time.Time
}

func parseClaims(token string) (tokenClaims, error) {
	if token == "" {
		return tokenClaims{}, ErrInvalidToken
	}
	tok, err := jwt.ParseString(token, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return tokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	out := tokenClaims{subject: tok.Subject(), expiresAt: tok.Expiration()}
	private := tok.PrivateClaims()
	if out.subject == "" {
		out.subject = claimString(private["id"])
	}
	out.hotelID = claimString(private["hotel_id"])
	out.role = claimString(private["role"])
	return out, nil
}

func claimString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

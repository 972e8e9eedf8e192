package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/petlog-console/internal/common"
)

type contextKey string

const sessionContextKey contextKey = "session"

// HeaderName carries the session id on dashboard requests.
const HeaderName = "X-Session-ID"

// CookieName is the fallback carrier of the session id.
const CookieName = "petlog_session"

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// From returns the session stored on ctx.
func From(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	return s, ok && s.ID != ""
}

// IDFromRequest extracts the session id from the header or cookie.
func IDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderName)); id != "" {
		return id
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// Require resolves the request session or answers 401.
func (m *Manager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r.Context(), IDFromRequest(r))
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
			return
		}
		if err != nil {
			common.JSONError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session store unavailable", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// ScopeKey returns the session id of r, used to scope rate limits and
// idempotency keys. It falls back to the client IP.
func ScopeKey(r *http.Request) string {
	if s, ok := From(r.Context()); ok {
		return "session:" + s.ID
	}
	return "ip:" + common.ClientIP(r)
}

package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestCSRFMiddlewareBlocksMissingToken(t *testing.T) {
	handler := CSRF{}.Middleware(okHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/1/checkout/confirm", nil)
	req.AddCookie(&http.Cookie{Name: "petlog_session", Value: "s-1"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestCSRFMiddlewareAllowsValidToken(t *testing.T) {
	handler := CSRF{Header: "X-CSRF-Token", Cookie: "petlog_csrf"}.Middleware(okHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/pay", nil)
	token := "secure-token"
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: "petlog_csrf", Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/pay", nil)
	bad.Header.Set("X-CSRF-Token", "other-token!")
	bad.AddCookie(&http.Cookie{Name: "petlog_csrf", Value: token})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, bad)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched token, got %d", rr.Code)
	}
}

func TestCSRFMiddlewareSkipsSessionHeader(t *testing.T) {
	handler := CSRF{TrustedHeader: "X-Session-ID"}.Middleware(okHandler(http.StatusAccepted))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/upgrade-quote", nil)
	req.Header.Set("X-Session-ID", "s-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for header session, got %d", rr.Code)
	}
}

func TestCSRFMiddlewareIssuesCookieOnSafeRequests(t *testing.T) {
	handler := CSRF{}.Middleware(okHandler(http.StatusOK))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/pricing/upgrade-quote", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "petlog_csrf" || cookies[0].Value == "" {
		t.Fatalf("expected csrf cookie, got %#v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pricing/upgrade-quote", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("existing cookie must not be rotated")
	}
}

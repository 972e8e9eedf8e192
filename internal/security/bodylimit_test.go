package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func discountEcho(t *testing.T, limit int64) http.Handler {
	t.Helper()
	return BodyLimit{Max: limit}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(data)
	}))
}

func TestBodyLimitPassesDiscountInput(t *testing.T) {
	rr := httptest.NewRecorder()
	body := `{"value":"15","type":"percent"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/bookings/1/checkout/discount", strings.NewReader(body))
	discountEcho(t, 64).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, body, rr.Body.String())
}

func TestBodyLimitRejectsOversizedStream(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/bookings/1/checkout/discount", strings.NewReader(`{"value":"1000000000"}`))
	req.ContentLength = -1
	discountEcho(t, 8).ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), `"PAYLOAD_TOO_LARGE"`)
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/pay", strings.NewReader("{}"))
	req.ContentLength = 100
	discountEcho(t, 8).ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimitIgnoresEmptyBodies(t *testing.T) {
	rr := httptest.NewRecorder()
	discountEcho(t, 1).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/1/checkout/confirm", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

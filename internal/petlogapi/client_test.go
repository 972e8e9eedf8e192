package petlogapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/petlog-console/internal/petlogapi"
)

func newClient(t *testing.T, h http.HandlerFunc) *petlogapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cl, err := petlogapi.New(petlogapi.Config{BaseURL: srv.URL + "/api", Timeout: time.Second, MaxAttempts: 1})
	require.NoError(t, err)
	return cl.WithToken("tok-1")
}

func TestBillingPreviewSendsBearerToken(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bookings/42/billing", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"room_total":400000,"services_total":25000,"days":2}`)
	})
	snap, err := cl.BillingPreview(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(400_000), snap.RoomTotal)
	require.Equal(t, int64(25_000), snap.ServicesTotal)
	require.Equal(t, 2, snap.Days)
}

func TestCheckoutSendsRawInputsInUTC(t *testing.T) {
	var got map[string]any
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/bookings/7/checkout", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":7,"status":"completed","grand_total":340000}`)
	})
	discount := int64(15)
	at := time.Date(2026, 3, 1, 17, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	booking, err := cl.Checkout(context.Background(), 7, petlogapi.CheckoutRequest{Discount: &discount, DiscountType: "percent", CheckOutAt: &at})
	require.NoError(t, err)
	require.Equal(t, int64(340_000), booking.GrandTotal)
	require.Equal(t, float64(15), got["discount"])
	require.Equal(t, "percent", got["discount_type"])
	require.Equal(t, "2026-03-01T10:30:00Z", got["check_out_at"])
}

func TestQuoteEndpointsEncodeQuery(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/payment/upgrade-cost":
			require.Equal(t, "pro plus", r.URL.Query().Get("plan"))
			_, _ = io.WriteString(w, `{"type":"upgrade","new_plan":"pro plus","days_remaining":12,"amount":48000}`)
		case "/api/payment/extra-rooms-cost":
			require.Equal(t, "3", r.URL.Query().Get("count"))
			_, _ = io.WriteString(w, `{"count":3,"days_remaining":12,"amount":12000,"max_rooms_after":13}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	up, err := cl.UpgradeCost(context.Background(), "pro plus")
	require.NoError(t, err)
	require.Equal(t, int64(48_000), up.Amount)
	require.Equal(t, 12, up.DaysRemaining)

	extra, err := cl.ExtraRoomsCost(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 13, extra.MaxRoomsAfter)
}

func TestErrorMessageIsSurfaced(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Booking đã checkout"}`)
	})
	_, err := cl.Checkout(context.Background(), 1, petlogapi.CheckoutRequest{})
	var apiErr *petlogapi.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	msg, ok := petlogapi.ServerMessage(err)
	require.True(t, ok)
	require.Equal(t, "Booking đã checkout", msg)
}

func TestErrorMessageListAndDefault(t *testing.T) {
	status := http.StatusUnprocessableEntity
	body := `{"message":["count must be positive","count must be an integer"]}`
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	_, err := cl.ExtraRoomsCost(context.Background(), 1)
	msg, _ := petlogapi.ServerMessage(err)
	require.Equal(t, "count must be positive; count must be an integer", msg)

	status, body = http.StatusNotFound, "not json"
	_, err = cl.Booking(context.Background(), 9)
	require.True(t, petlogapi.IsNotFound(err))
	require.EqualError(t, err, "petlogapi: 404 HTTP 404")
}

func TestUnavailableUpstream(t *testing.T) {
	cl, err := petlogapi.New(petlogapi.Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	_, err = cl.ExtraRoomPrice(context.Background())
	require.ErrorIs(t, err, petlogapi.ErrUnavailable)
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := petlogapi.New(petlogapi.Config{})
	require.Error(t, err)
	_, err = petlogapi.New(petlogapi.Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestAppErrorMapping(t *testing.T) {
	rejected := petlogapi.AppError(&petlogapi.APIError{Status: http.StatusConflict, Message: "đã thanh toán"}, "CHECKOUT_FAILED", "checkout failed")
	require.Equal(t, http.StatusConflict, rejected.HTTPStatus)
	require.Equal(t, "đã thanh toán", rejected.Message)

	silent := petlogapi.AppError(&petlogapi.APIError{Status: http.StatusInternalServerError}, "CHECKOUT_FAILED", "checkout failed")
	require.Equal(t, http.StatusBadGateway, silent.HTTPStatus)
	require.Equal(t, "checkout failed", silent.Message)

	down := petlogapi.AppError(petlogapi.ErrUnavailable, "CHECKOUT_FAILED", "checkout failed")
	require.Equal(t, http.StatusBadGateway, down.HTTPStatus)
	require.Equal(t, "CHECKOUT_FAILED", down.Code)
	require.ErrorIs(t, down, petlogapi.ErrUnavailable)
}

func TestServerErrorMessageSurvivesOnWrites(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"Không thể checkout"}`)
	})
	_, err := cl.Checkout(context.Background(), 5, petlogapi.CheckoutRequest{})
	msg, ok := petlogapi.ServerMessage(err)
	require.True(t, ok)
	require.Equal(t, "Không thể checkout", msg)
}

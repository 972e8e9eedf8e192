package checkout

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/petlog-console/internal/billing"
	"github.com/noah-isme/petlog-console/internal/common"
	"github.com/noah-isme/petlog-console/internal/money"
	"github.com/noah-isme/petlog-console/internal/petlogapi"
	"github.com/noah-isme/petlog-console/internal/session"
)

type Handler struct {
	Svc       *Service
	Validate  *validator.Validate
	Formatter money.Formatter
}

type summaryDisplay struct {
	RoomTotal     string `json:"room_total"`
	ServicesTotal string `json:"services_total"`
	Subtotal      string `json:"subtotal"`
	Discount      string `json:"discount"`
	GrandTotal    string `json:"grand_total"`
}

type draftView struct {
	BookingID     int64             `json:"booking_id"`
	Booking       petlogapi.Booking `json:"booking"`
	Summary       *billing.Summary  `json:"summary,omitempty"`
	Display       *summaryDisplay   `json:"display,omitempty"`
	PreviewError  string            `json:"preview_error,omitempty"`
	DiscountValue int64             `json:"discount_value"`
	DiscountType  billing.Kind      `json:"discount_type"`
	CheckOutAt    *time.Time        `json:"check_out_at,omitempty"`
	OpenedAt      time.Time         `json:"opened_at"`
}

func (h *Handler) view(d Draft) draftView {
	v := draftView{
		BookingID:     d.BookingID,
		Booking:       d.Booking,
		PreviewError:  d.PreviewError,
		DiscountValue: d.Discount.Value(),
		DiscountType:  d.Discount.Kind(),
		CheckOutAt:    d.CheckOutAt,
		OpenedAt:      d.OpenedAt,
	}
	if s, ok := d.Summary(); ok {
		v.Summary = &s
		v.Display = &summaryDisplay{
			RoomTotal:     h.Formatter.Format(s.RoomTotal),
			ServicesTotal: h.Formatter.Format(s.ServicesTotal),
			Subtotal:      h.Formatter.Format(s.Subtotal),
			Discount:      h.Formatter.Format(s.AppliedDiscount),
			GrandTotal:    h.Formatter.Format(s.GrandTotal),
		}
	}
	return v
}

// Open starts the checkout dialog of a booking.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	d, err := h.Svc.Open(r.Context(), sess, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, h.view(d))
}

// Get returns the open draft.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	d, err := h.Svc.Get(sess, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(d))
}

type discountRequest struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

// SetDiscount recomputes the preview for a new discount.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var payload discountRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	d, err := h.Svc.SetDiscount(sess, id, common.RawText(payload.Value), payload.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(d))
}

type checkoutTimeRequest struct {
	CheckOutAt string `json:"check_out_at"`
}

// SetCheckoutTime sets the custom checkout time; empty means now.
func (h *Handler) SetCheckoutTime(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var payload checkoutTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	d, err := h.Svc.SetCheckoutTime(sess, id, payload.CheckOutAt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(d))
}

// Confirm checks the booking out.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	b, err := h.Svc.Confirm(r.Context(), sess, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"booking":             b,
		"grand_total_display": h.Formatter.Format(b.GrandTotal),
	})
}

// Discard closes the dialog without checking out.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	h.Svc.Discard(sess, id)
	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	Method string `json:"method" validate:"required,oneof=cash bank"`
}

// RecordPayment marks a checked-out booking paid.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var payload paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Method = strings.ToLower(strings.TrimSpace(payload.Method))
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			h.writeError(w, ErrPaymentMethod)
			return
		}
	}
	b, err := h.Svc.RecordPayment(r.Context(), sess, id, payload.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, b)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (session.Session, int64, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return session.Session{}, 0, false
	}
	sess, ok := session.From(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return session.Session{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid booking id", nil)
		return session.Session{}, 0, false
	}
	return sess, id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.IsAppError(err) {
		common.WriteError(w, err)
		return
	}
	common.WriteError(w, petlogapi.AppError(err, "UPSTREAM_FAILED", "booking request failed"))
}

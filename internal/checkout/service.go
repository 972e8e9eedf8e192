// Package checkout drives the booking checkout dialog: a draft holds the
// billing preview and the operator's discount while it is being edited, and
// confirmation hands the same raw inputs to the API, whose totals win.
package checkout

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/petlog-console/internal/billing"
	"github.com/noah-isme/petlog-console/internal/common"
	"github.com/noah-isme/petlog-console/internal/lock"
	"github.com/noah-isme/petlog-console/internal/obs"
	"github.com/noah-isme/petlog-console/internal/petlogapi"
	"github.com/noah-isme/petlog-console/internal/session"
)

// DefaultFailureMessage is shown when a failed checkout carries no server message.
const DefaultFailureMessage = "checkout failed"

var (
	ErrDraftNotFound = common.NewAppError("DRAFT_NOT_FOUND", "checkout has not been opened", http.StatusNotFound, nil)
	ErrNotActive     = common.NewAppError("BOOKING_NOT_ACTIVE", "booking is not active", http.StatusConflict, nil)
	ErrNotCompleted  = common.NewAppError("BOOKING_NOT_COMPLETED", "booking has not been checked out", http.StatusConflict, nil)
	ErrAlreadyPaid   = common.NewAppError("ALREADY_PAID", "booking is already paid", http.StatusConflict, nil)
	ErrPaymentMethod = common.BadRequest("payment method must be cash or bank", nil)
	ErrInvalidTime   = common.BadRequest("check_out_at must be an ISO 8601 time", nil)
	ErrInProgress    = common.NewAppError("CHECKOUT_IN_PROGRESS", "booking is being checked out by another operator", http.StatusConflict, nil)
	ErrLockFailed    = common.NewAppError("LOCK_UNAVAILABLE", "checkout lock unavailable", http.StatusServiceUnavailable, nil)
)

const confirmLockTTL = 30 * time.Second

// Guard serialises confirmations of one booking across console instances.
type Guard interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// API is the slice of the PetLog API used by checkout.
type API interface {
	Booking(ctx context.Context, id int64) (petlogapi.Booking, error)
	BillingPreview(ctx context.Context, id int64) (billing.Snapshot, error)
	Checkout(ctx context.Context, id int64, req petlogapi.CheckoutRequest) (petlogapi.Booking, error)
	UpdatePayment(ctx context.Context, id int64, req petlogapi.PaymentUpdate) (petlogapi.Booking, error)
}

// Draft is one open checkout dialog. Preview is nil when the billing preview
// could not be loaded; the booking can still be checked out without it.
type Draft struct {
	BookingID    int64
	Booking      petlogapi.Booking
	Preview      *billing.Snapshot
	PreviewError string
	Discount     billing.Discount
	CheckOutAt   *time.Time
	OpenedAt     time.Time
}

// Summary derives the advisory totals of the draft.
func (d Draft) Summary() (billing.Summary, bool) {
	if d.Preview == nil {
		return billing.Summary{}, false
	}
	return billing.Preview(*d.Preview, d.Discount), true
}

type draftKey struct {
	session string
	booking int64
}

// Service keeps the drafts of every session.
type Service struct {
	// API returns a client bound to the session token.
	API    func(session.Session) API
	Guard  Guard
	Logger zerolog.Logger
	Now    func() time.Time

	mu      sync.Mutex
	drafts  map[draftKey]*Draft
	expires map[string]time.Time
}

// Open loads the booking and its billing preview and starts a fresh draft
// with no discount. Reopening replaces the previous draft.
func (s *Service) Open(ctx context.Context, sess session.Session, bookingID int64) (Draft, error) {
	api := s.API(sess)
	b, err := api.Booking(ctx, bookingID)
	if err != nil {
		return Draft{}, err
	}
	if b.Status != petlogapi.BookingActive {
		return Draft{}, ErrNotActive
	}
	d := Draft{
		BookingID: bookingID,
		Booking:   b,
		Discount:  billing.NoDiscount(),
		OpenedAt:  s.now(),
	}
	snap, err := api.BillingPreview(ctx, bookingID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Draft{}, ctxErr
		}
		s.Logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("billing_preview_unavailable")
		d.PreviewError = previewMessage(err)
	} else {
		d.Preview = &snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drafts == nil {
		s.drafts = make(map[draftKey]*Draft)
		s.expires = make(map[string]time.Time)
	}
	s.drafts[draftKey{sess.ID, bookingID}] = &d
	if !sess.ExpiresAt.IsZero() {
		s.expires[sess.ID] = sess.ExpiresAt
	}
	return d, nil
}

// Get returns the open draft.
func (s *Service) Get(sess session.Session, bookingID int64) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftKey{sess.ID, bookingID}]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return *d, nil
}

// SetDiscount replaces the draft discount from raw form input. Non-digits
// in text are dropped; an unknown kind leaves the draft untouched.
func (s *Service) SetDiscount(sess session.Session, bookingID int64, text, kind string) (Draft, error) {
	disc, err := billing.ParseDiscountInput(text, kind)
	if err != nil {
		return Draft{}, common.BadRequest("discount type must be fixed or percent", err)
	}
	return s.update(sess, bookingID, func(d *Draft) error {
		d.Discount = disc
		return nil
	})
}

// SetCheckoutTime sets or, with an empty value, clears the custom checkout
// time. The time is kept in UTC.
func (s *Service) SetCheckoutTime(sess session.Session, bookingID int64, raw string) (Draft, error) {
	var at *time.Time
	if raw = strings.TrimSpace(raw); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Draft{}, ErrInvalidTime
		}
		utc := parsed.UTC()
		at = &utc
	}
	return s.update(sess, bookingID, func(d *Draft) error {
		d.CheckOutAt = at
		return nil
	})
}

// Confirm checks the booking out with the draft inputs. On success the draft
// is discarded and the API's booking is returned; on failure the draft stays
// so the operator can retry, and the error carries the server message or
// DefaultFailureMessage.
func (s *Service) Confirm(ctx context.Context, sess session.Session, bookingID int64) (petlogapi.Booking, error) {
	d, err := s.Get(sess, bookingID)
	if err != nil {
		return petlogapi.Booking{}, err
	}
	value := d.Discount.Value()
	req := petlogapi.CheckoutRequest{
		Discount:     &value,
		DiscountType: string(d.Discount.Kind()),
		CheckOutAt:   d.CheckOutAt,
	}

	var (
		out   petlogapi.Booking
		fresh *billing.Snapshot
		ran   bool
	)
	call := func(ctx context.Context) error {
		ran = true
		ctx, end := obs.StartSpan(ctx, "checkout.confirm", attribute.Int64("booking.id", bookingID))
		api := s.API(sess)
		// Previews price the stay up to now, never up to a custom checkout time.
		if d.Preview != nil && d.CheckOutAt == nil {
			if snap, err := api.BillingPreview(ctx, bookingID); err == nil {
				fresh = &snap
			}
		}
		var err error
		out, err = api.Checkout(ctx, bookingID, req)
		end(err)
		return err
	}
	if s.Guard != nil {
		key := "checkout:" + sess.HotelID + ":" + strconv.FormatInt(bookingID, 10)
		err = s.Guard.TryWithLock(ctx, key, confirmLockTTL, call)
	} else {
		err = call(ctx)
	}
	switch {
	case errors.Is(err, lock.ErrHeld):
		return petlogapi.Booking{}, ErrInProgress
	case err != nil && !ran:
		s.Logger.Error().Err(err).Int64("booking_id", bookingID).Msg("checkout_lock_failed")
		return petlogapi.Booking{}, ErrLockFailed
	}
	if err != nil {
		obs.CheckoutConfirmTotal.WithLabelValues("error").Inc()
		s.Logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("checkout_failed")
		return petlogapi.Booking{}, petlogapi.AppError(err, "CHECKOUT_FAILED", DefaultFailureMessage)
	}
	obs.CheckoutConfirmTotal.WithLabelValues("ok").Inc()

	if fresh != nil {
		s.reportDrift(bookingID, billing.Preview(*fresh, d.Discount), out)
	}

	s.mu.Lock()
	delete(s.drafts, draftKey{sess.ID, bookingID})
	s.mu.Unlock()
	s.Logger.Info().Int64("booking_id", bookingID).Str("invoice", out.InvoiceNumber).Int64("grand_total", out.GrandTotal).Msg("checkout_confirmed")
	return out, nil
}

// Discard drops a draft without checking out.
func (s *Service) Discard(sess session.Session, bookingID int64) {
	s.mu.Lock()
	delete(s.drafts, draftKey{sess.ID, bookingID})
	s.mu.Unlock()
}

// RecordPayment marks a checked-out booking paid in full by method, for the
// grand total the API computed.
func (s *Service) RecordPayment(ctx context.Context, sess session.Session, bookingID int64, method string) (petlogapi.Booking, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method != petlogapi.PaymentCash && method != petlogapi.PaymentBank {
		return petlogapi.Booking{}, ErrPaymentMethod
	}
	api := s.API(sess)
	b, err := api.Booking(ctx, bookingID)
	if err != nil {
		return petlogapi.Booking{}, err
	}
	if b.Status != petlogapi.BookingCompleted {
		return petlogapi.Booking{}, ErrNotCompleted
	}
	if b.PaymentStatus == "paid" {
		return petlogapi.Booking{}, ErrAlreadyPaid
	}
	out, err := api.UpdatePayment(ctx, bookingID, petlogapi.PaymentUpdate{
		PaymentStatus: "paid",
		PaymentMethod: method,
		PaymentAmount: b.GrandTotal,
	})
	if err != nil {
		return petlogapi.Booking{}, err
	}
	s.Logger.Info().Int64("booking_id", bookingID).Str("method", method).Int64("amount", b.GrandTotal).Msg("payment_recorded")
	return out, nil
}

// DropSession discards every draft of sess. It matches session.TeardownFunc.
func (s *Service) DropSession(_ context.Context, sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(sess.ID)
}

// Sweep discards the drafts of sessions that expired at or before now and
// reports how many sessions were dropped.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.expires {
		if at.After(now) {
			continue
		}
		s.dropLocked(id)
		n++
	}
	return n
}

func (s *Service) dropLocked(id string) {
	for k := range s.drafts {
		if k.session == id {
			delete(s.drafts, k)
		}
	}
	delete(s.expires, id)
}

func (s *Service) update(sess session.Session, bookingID int64, fn func(*Draft) error) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftKey{sess.ID, bookingID}]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	next := *d
	if err := fn(&next); err != nil {
		return Draft{}, err
	}
	*d = next
	return next, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) reportDrift(bookingID int64, summary billing.Summary, out petlogapi.Booking) {
	if out.GrandTotal == summary.GrandTotal {
		return
	}
	obs.CheckoutPreviewDrift.Inc()
	s.Logger.Warn().
		Int64("booking_id", bookingID).
		Int64("preview_grand_total", summary.GrandTotal).
		Int64("grand_total", out.GrandTotal).
		Msg("billing_preview_drift")
}

func previewMessage(err error) string {
	if msg, ok := petlogapi.ServerMessage(err); ok {
		return msg
	}
	if errors.Is(err, petlogapi.ErrUnavailable) {
		return "billing preview unavailable"
	}
	return "billing preview failed"
}

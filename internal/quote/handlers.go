package quote

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/petlog-console/internal/common"
	"github.com/noah-isme/petlog-console/internal/money"
	"github.com/noah-isme/petlog-console/internal/obs"
	"github.com/noah-isme/petlog-console/internal/petlogapi"
	"github.com/noah-isme/petlog-console/internal/pricing"
	"github.com/noah-isme/petlog-console/internal/session"
)

const defaultMaxWait = 10 * time.Second

var (
	errQuoteNotReady = common.NewAppError("QUOTE_NOT_READY", "quote is not ready", http.StatusConflict, nil)
	errUpgradeQuote  = common.NewAppError("UPGRADE_QUOTE_REQUIRED", "plan changes are priced by the upgrade quote", http.StatusConflict, nil)
	errPlanNotFound  = common.NewAppError("PLAN_NOT_FOUND", "plan not found", http.StatusNotFound, nil)
	errNothingToPay  = common.BadRequest("plan or extra_rooms is required", nil)
)

// Handler serves the pricing views: quotes, new purchase estimates and
// payment links.
type Handler struct {
	Registry  *Registry
	Validate  *validator.Validate
	Formatter money.Formatter
	Logger    zerolog.Logger
	// MaxWait caps the ?wait= long poll.
	MaxWait time.Duration
}

// View is the wire form of a snapshot.
type View struct {
	Status        Status       `json:"status"`
	Key           any          `json:"key"`
	Value         any          `json:"value,omitempty"`
	Amount        *money.Money `json:"amount,omitempty"`
	AmountDisplay string       `json:"amount_display,omitempty"`
	Error         string       `json:"error,omitempty"`
	Generation    uint64       `json:"generation"`
	CanConfirm    bool         `json:"can_confirm"`
}

func newView[K comparable, V any](s Snapshot[K, V], amount func(V) money.Money, f money.Formatter) View {
	v := View{
		Status:     s.Status,
		Key:        s.Key,
		Error:      s.Error,
		Generation: s.Generation,
		CanConfirm: s.CanConfirm(),
	}
	if s.Value != nil {
		a := amount(*s.Value)
		v.Value = *s.Value
		v.Amount = &a
		v.AmountDisplay = f.Format(a)
	}
	return v
}

func upgradeAmount(c petlogapi.UpgradeCost) money.Money { return c.Amount }
func extraRoomsAmount(c petlogapi.ExtraRoomsCost) money.Money { return c.Amount }

type upgradeQuoteRequest struct {
	Plan string `json:"plan"`
}

// SelectUpgrade starts an upgrade quote for the chosen plan.
func (h *Handler) SelectUpgrade(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}
	var payload upgradeQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	snap, err := board.SelectPlan(r.Context(), strings.TrimSpace(payload.Plan))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if d, ok := h.wait(r); ok {
		snap = awaitFor(r.Context(), board.Upgrade, d)
	}
	common.Data(w, http.StatusAccepted, newView(snap, upgradeAmount, h.Formatter))
}

// UpgradeQuote returns the current upgrade quote.
func (h *Handler) UpgradeQuote(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}
	snap := board.Upgrade.Snapshot()
	if d, ok := h.wait(r); ok {
		snap = awaitFor(r.Context(), board.Upgrade, d)
	}
	common.Data(w, http.StatusOK, newView(snap, upgradeAmount, h.Formatter))
}

type extraRoomsQuoteRequest struct {
	Count json.RawMessage `json:"count"`
}

// SelectExtraRooms starts an extra-room quote. The count is whatever digits
// the input holds; 0 clears the quote.
func (h *Handler) SelectExtraRooms(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}
	var payload extraRoomsQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	snap := board.SelectExtraRooms(r.Context(), SanitizeCount(common.RawText(payload.Count)))
	if d, ok := h.wait(r); ok {
		snap = awaitFor(r.Context(), board.ExtraRooms, d)
	}
	common.Data(w, http.StatusAccepted, newView(snap, extraRoomsAmount, h.Formatter))
}

// ExtraRoomsQuote returns the current extra-room quote.
func (h *Handler) ExtraRoomsQuote(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}
	snap := board.ExtraRooms.Snapshot()
	if d, ok := h.wait(r); ok {
		snap = awaitFor(r.Context(), board.ExtraRooms, d)
	}
	common.Data(w, http.StatusOK, newView(snap, extraRoomsAmount, h.Formatter))
}

type estimateView struct {
	pricing.Estimate
	PlanCostDisplay   string `json:"plan_cost_display"`
	ExtraCostDisplay  string `json:"extra_cost_display"`
	TotalDisplay      string `json:"total_display"`
	MonthlyPriceLabel string `json:"monthly_price_label"`
}

// Estimate prices a new purchase for display. Plan changes of a paid hotel
// are refused; they go through the upgrade quote.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("plan"))

	sub, err := board.Subscription(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sub.IsPaid() && name != sub.Plan {
		h.writeError(w, errUpgradeQuote)
		return
	}
	plan, err := findPlan(ctx, board.API, name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	unit, err := board.API.ExtraRoomPrice(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	est := pricing.Compute(pricing.Purchase{
		Plan:           plan,
		Months:         common.AtoiDefault(q.Get("months"), 1),
		ExtraRooms:     SanitizeCount(q.Get("extra_rooms")),
		ExtraRoomPrice: unit,
	})
	common.Data(w, http.StatusOK, estimateView{
		Estimate:          est,
		PlanCostDisplay:   h.Formatter.Format(est.PlanCost),
		ExtraCostDisplay:  h.Formatter.Format(est.ExtraCost),
		TotalDisplay:      h.Formatter.Format(est.Total),
		MonthlyPriceLabel: h.Formatter.FormatThousands(est.MonthlyPrice),
	})
}

type payRequest struct {
	Plan       string `json:"plan"`
	Months     int    `json:"months" validate:"omitempty,min=1,max=12"`
	Upgrade    bool   `json:"upgrade"`
	ExtraRooms int    `json:"extra_rooms" validate:"min=0"`
}

type payView struct {
	petlogapi.PaymentLink
	AmountDisplay string `json:"amount_display"`
}

// Pay opens a gateway checkout. Upgrades and extra-room purchases need
// a ready quote for exactly the requested selection.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}
	var payload payRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "months must be 1-12 and extra_rooms non-negative", nil)
			return
		}
	}
	payload.Plan = strings.TrimSpace(payload.Plan)
	if payload.Months == 0 {
		payload.Months = 1
	}

	kind, err := payKind(board, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ctx := r.Context()
	var link petlogapi.PaymentLink
	if kind == "extra_rooms" {
		link, err = board.API.CreateExtraRoomPayment(ctx, payload.ExtraRooms)
	} else {
		link, err = board.API.CreatePayment(ctx, petlogapi.PaymentRequest{
			Plan:       payload.Plan,
			Months:     payload.Months,
			Upgrade:    payload.Upgrade,
			ExtraRooms: payload.ExtraRooms,
		})
	}
	if err != nil {
		obs.PaymentLinksTotal.WithLabelValues(kind, "error").Inc()
		h.writeError(w, err)
		return
	}
	obs.PaymentLinksTotal.WithLabelValues(kind, "ok").Inc()
	board.Forget()
	h.Logger.Info().Str("kind", kind).Int64("order_code", link.OrderCode).Int64("amount", link.Amount).Msg("payment_link_created")
	common.Data(w, http.StatusCreated, payView{PaymentLink: link, AmountDisplay: h.Formatter.Format(link.Amount)})
}

// payKind classifies the purchase and checks that every amount it depends
// on has been quoted.
func payKind(board *Board, p payRequest) (string, error) {
	extraReady := func() bool {
		s := board.ExtraRooms.Snapshot()
		return s.CanConfirm() && s.Key == p.ExtraRooms
	}
	switch {
	case p.Upgrade:
		if p.Plan == "" {
			return "", common.BadRequest("plan is required for an upgrade", nil)
		}
		up := board.Upgrade.Snapshot()
		if !up.CanConfirm() || up.Key != p.Plan {
			return "", errQuoteNotReady
		}
		if p.ExtraRooms > 0 && !extraReady() {
			return "", errQuoteNotReady
		}
		return "upgrade", nil
	case p.Plan != "":
		return "purchase", nil
	case p.ExtraRooms > 0:
		if !extraReady() {
			return "", errQuoteNotReady
		}
		return "extra_rooms", nil
	default:
		return "", errNothingToPay
	}
}

func findPlan(ctx context.Context, api API, name string) (pricing.Plan, error) {
	if name == "" {
		return pricing.Plan{}, errPlanNotFound
	}
	plans, err := api.Plans(ctx)
	if err != nil {
		return pricing.Plan{}, err
	}
	for _, p := range plans {
		if p.Name == name {
			return p, nil
		}
	}
	return pricing.Plan{}, errPlanNotFound
}

// SanitizeCount keeps the digits of a room count input. Out of range values
// saturate.
func SanitizeCount(raw string) int {
	n := common.ParseDigits(raw)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) (*Board, bool) {
	s, ok := session.From(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return nil, false
	}
	return h.Registry.Board(s), true
}

func (h *Handler) wait(r *http.Request) (time.Duration, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("wait"))
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	limit := h.MaxWait
	if limit <= 0 {
		limit = defaultMaxWait
	}
	return min(d, limit), true
}

func awaitFor[K comparable, V any](ctx context.Context, t *Tracker[K, V], d time.Duration) Snapshot[K, V] {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return t.Wait(ctx)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.IsAppError(err) {
		common.WriteError(w, err)
		return
	}
	h.Logger.Warn().Err(err).Msg("pricing_upstream_failed")
	common.WriteError(w, petlogapi.AppError(err, "UPSTREAM_FAILED", "pricing request failed"))
}

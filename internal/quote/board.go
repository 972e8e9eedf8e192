package quote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/petlog-console/internal/money"
	"github.com/noah-isme/petlog-console/internal/petlogapi"
	"github.com/noah-isme/petlog-console/internal/pricing"
	"github.com/noah-isme/petlog-console/internal/session"
)

// API is the slice of the PetLog API the pricing views need.
type API interface {
	Subscription(ctx context.Context) (petlogapi.Subscription, error)
	Plans(ctx context.Context) ([]pricing.Plan, error)
	UpgradeCost(ctx context.Context, plan string) (petlogapi.UpgradeCost, error)
	ExtraRoomsCost(ctx context.Context, count int) (petlogapi.ExtraRoomsCost, error)
	ExtraRoomPrice(ctx context.Context) (money.Money, error)
	CreatePayment(ctx context.Context, req petlogapi.PaymentRequest) (petlogapi.PaymentLink, error)
	CreateExtraRoomPayment(ctx context.Context, count int) (petlogapi.PaymentLink, error)
}

type (
	UpgradeSnapshot    = Snapshot[string, petlogapi.UpgradeCost]
	ExtraRoomsSnapshot = Snapshot[int, petlogapi.ExtraRoomsCost]
)

// Board holds the pricing view state of one session: the plan upgrade quote
// and the extra-room quote.
type Board struct {
	API        API
	Upgrade    *Tracker[string, petlogapi.UpgradeCost]
	ExtraRooms *Tracker[int, petlogapi.ExtraRoomsCost]

	mu    sync.Mutex
	sub   *petlogapi.Subscription
	plans []pricing.Plan
}

// NewBoard builds idle trackers bound to api.
func NewBoard(api API, timeout time.Duration, logger *zerolog.Logger) *Board {
	b := &Board{API: api}
	b.Upgrade = NewTracker(api.UpgradeCost, Options[string]{
		Name:     "upgrade",
		Suppress: b.suppressPlan,
		Timeout:  timeout,
		Logger:   logger,
	})
	b.ExtraRooms = NewTracker(api.ExtraRoomsCost, Options[int]{
		Name:     "extra_rooms",
		Suppress: func(count int) bool { return count <= 0 },
		Timeout:  timeout,
		Logger:   logger,
	})
	return b
}

// Subscription returns the cached subscription, fetching it on first use.
func (b *Board) Subscription(ctx context.Context) (petlogapi.Subscription, error) {
	b.mu.Lock()
	if b.sub != nil {
		s := *b.sub
		b.mu.Unlock()
		return s, nil
	}
	b.mu.Unlock()

	s, err := b.API.Subscription(ctx)
	if err != nil {
		return petlogapi.Subscription{}, fmt.Errorf("load subscription: %w", err)
	}
	b.mu.Lock()
	b.sub = &s
	b.mu.Unlock()
	return s, nil
}

// Forget drops the cached subscription, e.g. after a payment.
func (b *Board) Forget() {
	b.mu.Lock()
	b.sub = nil
	b.mu.Unlock()
}

// SelectPlan asks for the upgrade proration of plan. Trial hotels, the
// current plan and plans listed below it leave the tracker idle.
func (b *Board) SelectPlan(ctx context.Context, plan string) (UpgradeSnapshot, error) {
	if _, err := b.Subscription(ctx); err != nil {
		return UpgradeSnapshot{}, err
	}
	if err := b.loadPlans(ctx); err != nil {
		return UpgradeSnapshot{}, err
	}
	return b.Upgrade.Select(ctx, plan), nil
}

func (b *Board) loadPlans(ctx context.Context) error {
	b.mu.Lock()
	loaded := b.plans != nil
	b.mu.Unlock()
	if loaded {
		return nil
	}
	plans, err := b.API.Plans(ctx)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	if plans == nil {
		plans = []pricing.Plan{}
	}
	b.mu.Lock()
	b.plans = plans
	b.mu.Unlock()
	return nil
}

// SelectExtraRooms asks for the cost of count additional rooms.
func (b *Board) SelectExtraRooms(ctx context.Context, count int) ExtraRoomsSnapshot {
	return b.ExtraRooms.Select(ctx, count)
}

// Close tears both trackers down.
func (b *Board) Close() {
	b.Upgrade.Close()
	b.ExtraRooms.Close()
}

func (b *Board) suppressPlan(plan string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if plan == "" || b.sub == nil {
		return true
	}
	if !b.sub.IsPaid() || b.sub.Plan == plan {
		return true
	}
	// Plans are listed lowest first; downgrades are never quoted.
	return planIndex(b.plans, plan) < planIndex(b.plans, b.sub.Plan)
}

func planIndex(plans []pricing.Plan, name string) int {
	for i, p := range plans {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Registry keeps one board per session.
type Registry struct {
	// API returns a client bound to the session token.
	API     func(session.Session) API
	Timeout time.Duration
	Logger  *zerolog.Logger

	mu      sync.Mutex
	boards  map[string]*Board
	expires map[string]time.Time
}

// Board returns the board of s, creating it on first use.
func (r *Registry) Board(s session.Session) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.boards == nil {
		r.boards = make(map[string]*Board)
		r.expires = make(map[string]time.Time)
	}
	if !s.ExpiresAt.IsZero() {
		r.expires[s.ID] = s.ExpiresAt
	}
	if b, ok := r.boards[s.ID]; ok {
		return b
	}
	b := NewBoard(r.API(s), r.Timeout, r.Logger)
	r.boards[s.ID] = b
	return b
}

// Lookup returns the board of a session without creating one.
func (r *Registry) Lookup(id string) (*Board, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[id]
	return b, ok
}

// Drop closes and forgets the board of s. It matches session.TeardownFunc.
func (r *Registry) Drop(_ context.Context, s session.Session) {
	r.mu.Lock()
	b, ok := r.boards[s.ID]
	delete(r.boards, s.ID)
	delete(r.expires, s.ID)
	r.mu.Unlock()
	if ok {
		b.Close()
	}
}

// Len reports the number of live boards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// CloseAll closes every board, cancelling in-flight quotes. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	boards := r.boards
	r.boards = nil
	r.expires = nil
	r.mu.Unlock()
	for _, b := range boards {
		b.Close()
	}
}

// Sweep closes the boards of sessions that expired at or before now and
// reports how many were dropped. Boards of sessions without an expiry stay.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var stale []*Board
	for id, at := range r.expires {
		if at.After(now) {
			continue
		}
		if b, ok := r.boards[id]; ok {
			stale = append(stale, b)
		}
		delete(r.boards, id)
		delete(r.expires, id)
	}
	r.mu.Unlock()
	for _, b := range stale {
		b.Close()
	}
	return len(stale)
}

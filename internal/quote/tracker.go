// Package quote keeps the state of server-computed cost quotes (plan upgrade
// proration, extra rooms) while the dashboard waits for them. Amounts are
// shown verbatim; nothing here estimates a fallback.
package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/petlog-console/internal/obs"
)

// Status is the state of a tracker.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// ErrClosed is reported by a tracker that has been torn down.
var ErrClosed = errors.New("quote: tracker closed")

// Snapshot is an immutable view of a tracker.
type Snapshot[K comparable, V any] struct {
	Status     Status `json:"status"`
	Key        K      `json:"key"`
	Value      *V     `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	Generation uint64 `json:"generation"`
	err        error
}

// Err returns the fetch error of an error snapshot.
func (s Snapshot[K, V]) Err() error { return s.err }

// CanConfirm reports whether the quoted amount may be paid. Only a ready
// quote can be confirmed.
func (s Snapshot[K, V]) CanConfirm() bool { return s.Status == StatusReady && s.Value != nil }

// Settled reports whether the snapshot is not waiting on the API.
func (s Snapshot[K, V]) Settled() bool { return s.Status != StatusLoading }

// FetchFunc asks the API for the quote of key.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options tune a tracker.
type Options[K comparable] struct {
	// Name labels logs and metrics.
	Name string
	// Suppress reports keys for which no quote is requested at all.
	Suppress func(K) bool
	// Timeout bounds a single fetch; zero leaves it to the HTTP client.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Tracker runs the idle -> loading -> ready|error state machine for one view.
// Every Select starts a new generation; a fetch result is applied only while
// its generation is still the newest, so a late answer for an older selection
// never replaces a newer one.
type Tracker[K comparable, V any] struct {
	name     string
	fetch    FetchFunc[K, V]
	suppress func(K) bool
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	snap    Snapshot[K, V]
	subs    map[uint64]chan Snapshot[K, V]
	nextSub uint64
	closed  bool
}

// NewTracker builds an idle tracker around fetch.
func NewTracker[K comparable, V any](fetch FetchFunc[K, V], opts Options[K]) *Tracker[K, V] {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	name := opts.Name
	if name == "" {
		name = "quote"
	}
	return &Tracker[K, V]{
		name:     name,
		fetch:    fetch,
		suppress: opts.Suppress,
		timeout:  opts.Timeout,
		logger:   logger.With().Str("tracker", name).Logger(),
		snap:     Snapshot[K, V]{Status: StatusIdle},
		subs:     make(map[uint64]chan Snapshot[K, V]),
	}
}

// Select records a new user selection. Suppressed keys return the tracker to
// idle without a request. Otherwise the previous fetch is cancelled and a new
// one starts; the returned snapshot is in the loading state. ctx only
// contributes values (trace, logger); the fetch outlives the caller.
func (t *Tracker[K, V]) Select(ctx context.Context, key K) Snapshot[K, V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Snapshot[K, V]{Status: StatusError, Key: key, Error: ErrClosed.Error(), Generation: t.gen, err: ErrClosed}
	}
	t.gen++
	gen := t.gen
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.suppress != nil && t.suppress(key) {
		t.publishLocked(Snapshot[K, V]{Status: StatusIdle, Key: key, Generation: gen})
		observe(t.name, "suppressed")
		return t.snap
	}

	base := context.WithoutCancel(ctx)
	var fetchCtx context.Context
	var cancel context.CancelFunc
	if t.timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(base, t.timeout)
	} else {
		fetchCtx, cancel = context.WithCancel(base)
	}
	t.cancel = cancel
	t.publishLocked(Snapshot[K, V]{Status: StatusLoading, Key: key, Generation: gen})

	go t.run(fetchCtx, cancel, gen, key)
	return t.snap
}

func (t *Tracker[K, V]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, key K) {
	defer cancel()
	start := time.Now()
	ctx, end := obs.StartSpan(ctx, "quote.fetch",
		attribute.String("quote.tracker", t.name),
		attribute.Int64("quote.generation", int64(gen)),
	)
	value, err := t.fetch(ctx, key)
	end(err)
	elapsed := time.Since(start)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.gen {
		observe(t.name, "stale")
		t.logger.Debug().Uint64("generation", gen).Uint64("current", t.gen).Msg("quote_stale_discarded")
		return
	}
	t.cancel = nil
	if obs.QuoteLatency != nil {
		obs.QuoteLatency.WithLabelValues(t.name).Observe(obs.DurationMillis(elapsed))
	}
	if err != nil {
		observe(t.name, "error")
		t.logger.Warn().Err(err).Uint64("generation", gen).Msg("quote_failed")
		t.publishLocked(Snapshot[K, V]{Status: StatusError, Key: key, Error: err.Error(), Generation: gen, err: err})
		return
	}
	observe(t.name, "ready")
	v := value
	t.publishLocked(Snapshot[K, V]{Status: StatusReady, Key: key, Value: &v, Generation: gen})
}

// Snapshot returns the current state.
func (t *Tracker[K, V]) Snapshot() Snapshot[K, V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Reset cancels any in-flight fetch and returns to idle.
func (t *Tracker[K, V]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.publishLocked(Snapshot[K, V]{Status: StatusIdle, Generation: t.gen})
}

// Subscribe streams every state change, starting with the current one. Slow
// readers only ever see the latest snapshot. The returned stop function ends
// the subscription and closes the channel.
func (t *Tracker[K, V]) Subscribe() (<-chan Snapshot[K, V], func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Snapshot[K, V], 1)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	ch <- t.snap
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
}

// Wait blocks until the tracker settles (not loading) or ctx is done, and
// returns the latest snapshot either way.
func (t *Tracker[K, V]) Wait(ctx context.Context) Snapshot[K, V] {
	ch, stop := t.Subscribe()
	defer stop()
	last := t.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return last
		case snap, ok := <-ch:
			if !ok {
				return last
			}
			last = snap
			if snap.Settled() {
				return snap
			}
		}
	}
}

// Close tears the tracker down: the in-flight fetch is cancelled and all
// subscriptions are closed. Further selections report ErrClosed.
func (t *Tracker[K, V]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}

func (t *Tracker[K, V]) publishLocked(s Snapshot[K, V]) {
	t.snap = s
	for _, ch := range t.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func observe(tracker, outcome string) {
	if obs.QuoteOutcomes == nil {
		return
	}
	obs.QuoteOutcomes.WithLabelValues(tracker, outcome).Inc()
}

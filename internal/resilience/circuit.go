package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// BreakerConfig tunes a Breaker. Window is the number of most recent
// outcomes the failure ratio is computed over; the breaker never opens
// before the window is full.
type BreakerConfig struct {
	Target       string
	Window       int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Breaker guards one upstream. It trips when the failure ratio over the
// last Window calls reaches FailureRatio, refuses calls for OpenFor, then
// lets exactly one probe through; the probe's outcome closes or reopens it.
type Breaker struct {
	target  string
	ratio   float64
	openFor time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	state    State
	outcomes []bool
	next     int
	filled   int
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a closed breaker from cfg, filling in defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		target = "default"
	}
	b := &Breaker{
		target:   target,
		ratio:    cfg.FailureRatio,
		openFor:  cfg.OpenFor,
		logger:   cfg.Logger,
		now:      cfg.Now,
		outcomes: make([]bool, cfg.Window),
	}
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(Closed.gauge())
	}
	return b
}

// Target is the upstream label used in metrics and logs.
func (b *Breaker) Target() string { return b.target }

// Allow reports whether a call may go out now. Once the cool-off has passed
// the first caller becomes the half-open probe; others are refused until it
// reports.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if b.filled == len(b.outcomes) && !b.outcomes[b.next] {
		b.failures--
	}
	b.outcomes[b.next] = success
	if !success {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.outcomes)
	if b.filled < len(b.outcomes) {
		b.filled++
	}
	if b.filled < len(b.outcomes) {
		return
	}
	if float64(b.failures)/float64(b.filled) >= b.ratio {
		b.moveLocked(ctx, Open)
	}
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
		b.next, b.filled, b.failures = 0, 0, 0
	}

	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(to.gauge())
	}
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", b.target).Str("from_state", from.String()).Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

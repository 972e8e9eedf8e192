package quote_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/petlog-console/internal/obs"
	"github.com/noah-isme/petlog-console/internal/quote"
)

type gated struct {
	release map[string]chan int64
}

func newGated(keys ...string) *gated {
	g := &gated{release: make(map[string]chan int64)}
	for _, k := range keys {
		g.release[k] = make(chan int64)
	}
	return g
}

// fetch answers only when the test releases the key, ignoring cancellation
// like a server that has already computed its reply.
func (g *gated) fetch(_ context.Context, key string) (int64, error) {
	return <-g.release[key], nil
}

func waitStatus[K comparable, V any](t *testing.T, tr *quote.Tracker[K, V], want quote.Status) quote.Snapshot[K, V] {
	t.Helper()
	var snap quote.Snapshot[K, V]
	require.Eventually(t, func() bool {
		snap = tr.Snapshot()
		return snap.Status == want
	}, time.Second, 5*time.Millisecond)
	return snap
}

func TestTrackerOutOfOrderResponsesKeepLatest(t *testing.T) {
	g := newGated("basic", "pro")
	tr := quote.NewTracker(g.fetch, quote.Options[string]{Name: "test_stale"})
	defer tr.Close()
	stale := obs.QuoteOutcomes.WithLabelValues("test_stale", "stale")
	before := testutil.ToFloat64(stale)

	first := tr.Select(context.Background(), "basic")
	require.Equal(t, quote.StatusLoading, first.Status)
	second := tr.Select(context.Background(), "pro")
	require.Greater(t, second.Generation, first.Generation)

	g.release["pro"] <- 250_000
	snap := waitStatus(t, tr, quote.StatusReady)
	require.Equal(t, "pro", snap.Key)
	require.Equal(t, int64(250_000), *snap.Value)

	g.release["basic"] <- 90_000
	require.Eventually(t, func() bool { return testutil.ToFloat64(stale) == before+1 }, time.Second, 5*time.Millisecond)

	final := tr.Snapshot()
	require.Equal(t, quote.StatusReady, final.Status)
	require.Equal(t, "pro", final.Key)
	require.Equal(t, int64(250_000), *final.Value)
	require.True(t, final.CanConfirm())
}

func TestTrackerErrorDisablesConfirm(t *testing.T) {
	boom := errors.New("upstream 503")
	tr := quote.NewTracker(func(context.Context, int) (int64, error) { return 0, boom }, quote.Options[int]{Name: "test_error"})
	defer tr.Close()

	tr.Select(context.Background(), 2)
	snap := waitStatus(t, tr, quote.StatusError)
	require.False(t, snap.CanConfirm())
	require.Nil(t, snap.Value)
	require.ErrorIs(t, snap.Err(), boom)
	require.Equal(t, boom.Error(), snap.Error)
}

func TestTrackerSuppressedKeyIssuesNoFetch(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context, int) (int64, error) {
		calls.Add(1)
		return 100, nil
	}
	tr := quote.NewTracker(fetch, quote.Options[int]{Name: "test_suppress", Suppress: func(n int) bool { return n == 0 }})
	defer tr.Close()

	tr.Select(context.Background(), 3)
	waitStatus(t, tr, quote.StatusReady)

	snap := tr.Select(context.Background(), 0)
	require.Equal(t, quote.StatusIdle, snap.Status)
	require.Nil(t, snap.Value)
	require.False(t, snap.CanConfirm())
	require.Equal(t, int32(1), calls.Load())
}

func TestTrackerSelectCancelsPreviousFetch(t *testing.T) {
	cancelled := make(chan error, 1)
	fetch := func(ctx context.Context, key string) (int64, error) {
		if key == "slow" {
			<-ctx.Done()
			cancelled <- ctx.Err()
			return 0, ctx.Err()
		}
		return 1, nil
	}
	tr := quote.NewTracker(fetch, quote.Options[string]{Name: "test_cancel"})
	defer tr.Close()

	tr.Select(context.Background(), "slow")
	tr.Select(context.Background(), "fast")
	select {
	case err := <-cancelled:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("previous fetch was not cancelled")
	}
	snap := waitStatus(t, tr, quote.StatusReady)
	require.Equal(t, "fast", snap.Key)
}

func TestTrackerFetchOutlivesRequestContext(t *testing.T) {
	g := newGated("pro")
	tr := quote.NewTracker(g.fetch, quote.Options[string]{Name: "test_detached"})
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr.Select(ctx, "pro")
	cancel()
	g.release["pro"] <- 7
	snap := waitStatus(t, tr, quote.StatusReady)
	require.Equal(t, int64(7), *snap.Value)
}

func TestTrackerTimeoutLandsInError(t *testing.T) {
	fetch := func(ctx context.Context, _ string) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	tr := quote.NewTracker(fetch, quote.Options[string]{Name: "test_timeout", Timeout: 20 * time.Millisecond})
	defer tr.Close()

	tr.Select(context.Background(), "pro")
	snap := waitStatus(t, tr, quote.StatusError)
	require.ErrorIs(t, snap.Err(), context.DeadlineExceeded)
}

func TestTrackerSubscribeStreamsStates(t *testing.T) {
	g := newGated("pro")
	tr := quote.NewTracker(g.fetch, quote.Options[string]{Name: "test_subscribe"})
	defer tr.Close()

	ch, stop := tr.Subscribe()
	require.Equal(t, quote.StatusIdle, (<-ch).Status)

	tr.Select(context.Background(), "pro")
	require.Equal(t, quote.StatusLoading, (<-ch).Status)
	g.release["pro"] <- 42
	ready := <-ch
	require.Equal(t, quote.StatusReady, ready.Status)
	require.Equal(t, int64(42), *ready.Value)

	stop()
	_, open := <-ch
	require.False(t, open)
}

func TestTrackerWaitReturnsSettledSnapshot(t *testing.T) {
	g := newGated("pro")
	tr := quote.NewTracker(g.fetch, quote.Options[string]{Name: "test_wait"})
	defer tr.Close()

	tr.Select(context.Background(), "pro")
	go func() { g.release["pro"] <- 5 }()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap := tr.Wait(ctx)
	require.Equal(t, quote.StatusReady, snap.Status)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	g2 := newGated("team")
	tr2 := quote.NewTracker(g2.fetch, quote.Options[string]{Name: "test_wait"})
	defer tr2.Close()
	tr2.Select(context.Background(), "team")
	require.Equal(t, quote.StatusLoading, tr2.Wait(ctx).Status)
}

func TestTrackerCloseEndsSubscriptionsAndRejectsSelect(t *testing.T) {
	g := newGated("pro")
	tr := quote.NewTracker(g.fetch, quote.Options[string]{Name: "test_close"})
	ch, _ := tr.Subscribe()
	<-ch

	tr.Select(context.Background(), "pro")
	<-ch
	tr.Close()
	_, open := <-ch
	require.False(t, open)

	snap := tr.Select(context.Background(), "pro")
	require.Equal(t, quote.StatusError, snap.Status)
	require.ErrorIs(t, snap.Err(), quote.ErrClosed)

	stale := obs.QuoteOutcomes.WithLabelValues("test_close", "stale")
	before := testutil.ToFloat64(stale)
	g.release["pro"] <- 1
	require.Eventually(t, func() bool { return testutil.ToFloat64(stale) == before+1 }, time.Second, 5*time.Millisecond)
	require.NotEqual(t, quote.StatusReady, tr.Snapshot().Status)
}

func TestTrackerResetReturnsToIdle(t *testing.T) {
	tr := quote.NewTracker(func(context.Context, int) (int64, error) { return 9, nil }, quote.Options[int]{Name: "test_reset"})
	defer tr.Close()
	tr.Select(context.Background(), 1)
	waitStatus(t, tr, quote.StatusReady)
	tr.Reset()
	require.Equal(t, quote.StatusIdle, tr.Snapshot().Status)
}

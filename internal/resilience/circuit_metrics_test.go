package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/petlog-console/internal/resilience"
)

func TestBreakerMetricsFollowPetlogAPI(t *testing.T) {
	resilience.MustRegisterMetrics(prometheus.NewRegistry())
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := newPetlogBreaker(c, 1)
	ctx := context.Background()
	state := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues("petlog-api")) }

	require.Equal(t, 0.0, state())
	b.Report(ctx, false)
	require.Equal(t, 1.0, state())

	c.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	require.Equal(t, 2.0, state())
	b.Report(ctx, true)
	require.Equal(t, 0.0, state())

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("petlog-api")))
	for _, edge := range [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}} {
		got := testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("petlog-api", edge[0], edge[1]))
		require.Equal(t, 1.0, got, "%s -> %s", edge[0], edge[1])
	}
}

package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/resilience"
)

func TestBreakerPublishesTransitions(t *testing.T) {
	const target = "metrics_api"
	now := time.Unix(1_700_000_000, 0)
	breaker := resilience.NewBreaker(2, 0.5, 30*time.Second).
		WithTarget(target).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	gauge := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)) }
	moved := func(from, to string) float64 {
		return testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, from, to))
	}

	breaker.Report(ctx, true)
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, gauge(), "one failure in two trips at ratio 0.5")

	now = now.Add(30 * time.Second)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, 2.0, gauge())

	// A failed probe reopens.
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, gauge())

	now = now.Add(30 * time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, true)
	require.Equal(t, 0.0, gauge())

	require.Equal(t, 1.0, moved("closed", "open"))
	require.Equal(t, 2.0, moved("open", "half_open"))
	require.Equal(t, 1.0, moved("half_open", "open"))
	require.Equal(t, 1.0, moved("half_open", "closed"))
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))
}

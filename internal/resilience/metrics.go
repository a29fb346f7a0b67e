package resilience

import "github.com/prometheus/client_golang/prometheus"

// Outbound breaker collectors, labelled by Breaker.WithTarget (e.g. "purchase_api").
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kreatif",
		Subsystem: "outbound",
		Name:      "breaker_state",
		Help:      "Breaker position per target: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kreatif",
		Subsystem: "outbound",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per target.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kreatif",
		Subsystem: "outbound",
		Name:      "breaker_opened_total",
		Help:      "Times a breaker tripped open, per target.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}

package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartOperationsTotal counts cart mutations by operation and outcome.
	CartOperationsTotal *prometheus.CounterVec
	// CouponEvaluationsTotal counts coupon evaluations by result.
	CouponEvaluationsTotal *prometheus.CounterVec
	// CouponRedemptionsTotal counts coupon redemptions by result.
	CouponRedemptionsTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// CheckoutLatency records purchase submission latency in milliseconds.
	CheckoutLatency *prometheus.HistogramVec
	// CartSessionsSwept counts expired in-memory cart sessions.
	CartSessionsSwept prometheus.Counter
	// ReceiptsTotal counts purchase receipt task outcomes.
	ReceiptsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics creates the cart, coupon, checkout and receipt
// collectors once and registers them on reg (default registerer when nil).
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartOperationsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Count of cart operations by outcome.",
		}, []string{"operation", "result"}))
		CouponEvaluationsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_evaluations_total",
			Help:      "Count of coupon evaluations by result.",
		}, []string{"result"}))
		CouponRedemptionsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemptions_total",
			Help:      "Count of coupon redemptions by result.",
		}, []string{"result"}))
		CheckoutTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"}))
		CheckoutLatency = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_purchase_duration_ms",
			Help:      "Latency of purchase submissions in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		CartSessionsSwept = registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sessions_swept_total",
			Help:      "Number of idle cart sessions evicted from memory.",
		}))
		ReceiptsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_receipts_total",
			Help:      "Count of purchase receipt deliveries by outcome.",
		}, []string{"result"}))
	})
}

// ObserveCartOperation records a cart operation outcome. Safe before registration.
func ObserveCartOperation(operation, result string) {
	if CartOperationsTotal == nil {
		return
	}
	CartOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveCouponEvaluation records a coupon evaluation result.
func ObserveCouponEvaluation(result string) {
	if CouponEvaluationsTotal == nil {
		return
	}
	CouponEvaluationsTotal.WithLabelValues(result).Inc()
}

// ObserveCouponRedemption records a coupon redemption result.
func ObserveCouponRedemption(result string) {
	if CouponRedemptionsTotal == nil {
		return
	}
	CouponRedemptionsTotal.WithLabelValues(result).Inc()
}

// ObserveCheckout records a checkout outcome and, when positive, the purchase latency.
func ObserveCheckout(result string, durationMs float64) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
	if CheckoutLatency != nil && durationMs > 0 {
		CheckoutLatency.WithLabelValues(result).Observe(durationMs)
	}
}

// ObserveSessionsSwept adds evicted session count.
func ObserveSessionsSwept(n int) {
	if CartSessionsSwept == nil || n <= 0 {
		return
	}
	CartSessionsSwept.Add(float64(n))
}

// ObserveReceipt records a receipt task outcome.
func ObserveReceipt(result string) {
	if ReceiptsTotal == nil {
		return
	}
	ReceiptsTotal.WithLabelValues(result).Inc()
}

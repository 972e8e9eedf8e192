package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteOutcomes counts how proration/extra-room quote fetches ended:
	// ready, error, stale (superseded by a newer selection), suppressed.
	QuoteOutcomes *prometheus.CounterVec
	// QuoteLatency records upstream quote latency in milliseconds.
	QuoteLatency *prometheus.HistogramVec
	// CheckoutConfirmTotal counts checkout confirmations by result.
	CheckoutConfirmTotal *prometheus.CounterVec
	// CheckoutPreviewDrift counts confirmations whose server grand total
	// differed from the previewed one.
	CheckoutPreviewDrift prometheus.Counter
	// PaymentLinksTotal counts gateway checkout links created by kind.
	PaymentLinksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
// Collectors stay usable before registration so packages can record unconditionally.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		initDomainCollectors(namespace)
		QuoteOutcomes = registerOrReuse(reg, QuoteOutcomes)
		QuoteLatency = registerOrReuse(reg, QuoteLatency)
		CheckoutConfirmTotal = registerOrReuse(reg, CheckoutConfirmTotal)
		CheckoutPreviewDrift = registerOrReuse(reg, CheckoutPreviewDrift)
		PaymentLinksTotal = registerOrReuse(reg, PaymentLinksTotal)
	})
}

func init() {
	initDomainCollectors("petlog")
}

func initDomainCollectors(namespace string) {
	QuoteOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_outcomes_total",
		Help:      "Count of quote fetch outcomes by tracker.",
	}, []string{"tracker", "outcome"})
	QuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quote_fetch_duration_ms",
		Help:      "Latency of upstream quote calculations in milliseconds.",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"tracker"})
	CheckoutConfirmTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_confirm_total",
		Help:      "Count of checkout confirmations by result.",
	}, []string{"result"})
	CheckoutPreviewDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_preview_drift_total",
		Help:      "Confirmations whose authoritative grand total differed from the preview.",
	})
	PaymentLinksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_links_total",
		Help:      "Gateway checkout links created by kind and result.",
	}, []string{"kind", "result"})
}

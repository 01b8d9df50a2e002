package checkout

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Outcomes     *prometheus.CounterVec
	Unreconciled prometheus.Counter
	Reconciled   prometheus.Counter
}

// NewMetrics registers checkout counters on reg. A nil reg yields working but
// unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_checkout_outcomes_total",
				Help: "Checkout attempts by outcome",
			},
			[]string{"outcome"},
		),
		Unreconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_checkout_unreconciled_total",
			Help: "Payments taken whose order could not be finalized",
		}),
		Reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_checkout_reconciled_total",
			Help: "Discrepancies resolved by the reconciler",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Outcomes, m.Unreconciled, m.Reconciled)
	}
	return m
}

package pricing

import "github.com/prometheus/client_golang/prometheus"

var (
	pricingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_requests_total",
			Help: "Price multiplier requests by outcome",
		},
		[]string{"result"},
	)

	pricingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_compute_duration_seconds",
		Help:    "Time to compute an uncached price multiplier",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	signalOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_signal_outcomes_total",
			Help: "Signal fetches that succeeded or fell back to neutral",
		},
		[]string{"signal", "result"},
	)
)

func init() {
	prometheus.MustRegister(pricingRequests, pricingLatency, signalOutcomes)
}

package experiments

import "github.com/prometheus/client_golang/prometheus"

var (
	assignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_assignments_total",
			Help: "Variant assignment lookups by outcome",
		},
		[]string{"result"},
	)

	exposuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_exposures_total",
			Help: "First-time exposures recorded per test and variant",
		},
		[]string{"test_id", "variant"},
	)

	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_conversions_total",
			Help: "Conversion attempts by outcome",
		},
		[]string{"result"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_status_transitions_total",
			Help: "Successful experiment status transitions",
		},
		[]string{"to"},
	)
)

func init() {
	prometheus.MustRegister(assignmentsTotal, exposuresTotal, conversionsTotal, transitionsTotal)
}

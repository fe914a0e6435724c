package cache

import "github.com/prometheus/client_golang/prometheus"

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricing_cache_requests_total",
		Help: "Results cache lookups by outcome",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(cacheRequests)
}

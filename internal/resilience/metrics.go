package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker telemetry, labelled by dependency so dashboards can tell the
// geocoding provider apart from anything else wired through this package.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "outbound",
		Name:      "breaker_state",
		Help:      "Current breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "outbound",
		Name:      "breaker_transition_total",
		Help:      "Breaker state transitions by edge.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "outbound",
		Name:      "breaker_open_total",
		Help:      "Times a breaker tripped open.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(entitlementDecisionsTotal) }

var entitlementDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Entitlement resolver outcomes, e.g. granted, denied:inactive, undetermined.",
	},
	[]string{"decision"},
)

func IncDecision(code string) {
	entitlementDecisionsTotal.WithLabelValues(norm(code)).Inc()
}

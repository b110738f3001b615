package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(refundSweepTotal) }

var refundSweepTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "refund_claim_sweeps_total",
		Help: "Stale refund claims handled by the reconciler, labeled by outcome.",
	},
	[]string{"outcome"}, // 'finalized', 'released', 'error'
)

func IncRefundSweep(outcome string) {
	refundSweepTotal.WithLabelValues(norm(outcome)).Inc()
}

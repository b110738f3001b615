package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		refundsTotal,
		refundedAmountTotal,
	)
}

var (
	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund attempts by result code (ok, not_found, invalid_state, invalid_input, provider_error, internal).",
		},
		[]string{"result"},
	)

	refundedAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunded_amount_total",
			Help: "Total refunded minor units, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncRefund(result string) {
	refundsTotal.WithLabelValues(norm(result)).Inc()
}

func AddRefundedAmount(currency string, amount int64) {
	refundedAmountTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(guestClaimsTotal) }

var guestClaimsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "guest_claims_total",
		Help: "Guest purchase rows processed by the claim reconciler.",
	},
	[]string{"result"}, // 'claimed', 'lost_race', 'ineligible', 'error'
)

func IncGuestClaim(result string) {
	guestClaimsTotal.WithLabelValues(norm(result)).Inc()
}

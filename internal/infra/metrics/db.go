package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolConns, dbPoolAcquireWait, dbPoolEmptyAcquires) }

// PoolSnapshot is one reading of the Postgres connection pool.
type PoolSnapshot struct {
	Max      int32
	Total    int32
	Idle     int32
	Acquired int32
	// Cumulative since the pool was opened.
	AcquireWait   time.Duration
	EmptyAcquires int64
}

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // max, total, idle, acquired
	)
	dbPoolAcquireWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_acquire_wait_seconds",
		Help: "Cumulative time spent acquiring Postgres connections.",
	})
	dbPoolEmptyAcquires = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_empty_acquires",
		Help: "Cumulative acquires that had to wait because the pool was empty.",
	})
)

// ObserveDBPool publishes s. A rising empty-acquire count with acquired == max means refunds
// and claims are queueing on the pool.
func ObserveDBPool(s PoolSnapshot) {
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	dbPoolAcquireWait.Set(s.AcquireWait.Seconds())
	dbPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
}

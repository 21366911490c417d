package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics instruments pool operations. All pool state is constructed
// explicitly, so the collectors are registered on an injected registerer
// instead of the package-global default.
type metrics struct {
	operations    *prometheus.CounterVec
	storeDuration prometheus.Histogram
	cachedEntries prometheus.GaugeFunc
}

func newMetrics(reg prometheus.Registerer, cache *Cache) *metrics {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commandpost",
			Subsystem: "pool",
			Name:      "operations_total",
			Help:      "Pool operations by name and outcome.",
		}, []string{"operation", "status"}),
		storeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "commandpost",
			Subsystem: "pool",
			Name:      "store_duration_seconds",
			Help:      "Time spent hashing and storing manifest content.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		cachedEntries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "commandpost",
			Subsystem: "pool",
			Name:      "cached_manifests",
			Help:      "Manifests currently held in the in-memory cache.",
		}, func() float64 { return float64(cache.Len()) }),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.storeDuration, m.cachedEntries)
	}
	return m
}

// observe records one operation outcome. err may be nil.
func (m *metrics) observe(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
}

func (m *metrics) observeStore(start time.Time) {
	m.storeDuration.Observe(time.Since(start).Seconds())
}

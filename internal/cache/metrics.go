package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics holds Prometheus metrics for cache operations.
type CacheMetrics struct {
	hitsTotal         *prometheus.CounterVec
	missesTotal       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

var (
	cacheMetricsInstance *CacheMetrics
	cacheMetricsOnce     sync.Once
)

// GetCacheMetrics returns the singleton cache metrics instance.
func GetCacheMetrics() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheMetricsInstance = newCacheMetrics()
	})
	return cacheMetricsInstance
}

func newCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitegate",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"backend"},
		),
		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitegate",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"backend"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sitegate",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Duration of cache operations in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"backend", "operation"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitegate",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache operation errors",
			},
			[]string{"backend", "operation"},
		),
	}
}

// Init pre-initializes label combinations so series appear in /metrics
// immediately after startup.
func (m *CacheMetrics) Init() {
	m.hitsTotal.WithLabelValues(backendRedis)
	m.missesTotal.WithLabelValues(backendRedis)
	for _, op := range []string{"get", "set", "delete", "ping"} {
		m.operationDuration.WithLabelValues(backendRedis, op)
		m.errorsTotal.WithLabelValues(backendRedis, op)
	}
}

// MustRegister registers the collectors with registry. Duplicate
// registration is ignored.
func (m *CacheMetrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		m.hitsTotal,
		m.missesTotal,
		m.operationDuration,
		m.errorsTotal,
	} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func observeDuration(backend, op string, start time.Time) {
	GetCacheMetrics().operationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

package apikey

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for API key authentication.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetSharedMetrics returns the singleton Metrics instance.
func GetSharedMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = NewMetrics("sitegate")
	})
	return sharedMetrics
}

// NewMetrics creates a new, unregistered Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sitegate"
	}

	return &Metrics{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_total",
				Help:      "Total number of API key authentication attempts",
			},
			[]string{"status", "code"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_duration_seconds",
				Help:      "API key authentication duration in seconds",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"status"},
		),
	}
}

// Init pre-initializes label combinations so series appear in /metrics
// before the first request.
func (m *Metrics) Init() {
	m.validationTotal.WithLabelValues("success", "ok")
	m.validationDuration.WithLabelValues("success")
	m.validationDuration.WithLabelValues("error")
	for _, code := range AllCodes {
		m.validationTotal.WithLabelValues("error", string(code))
	}
}

// RecordValidation records one authentication outcome.
func (m *Metrics) RecordValidation(res Result, duration time.Duration) {
	status, code := "success", "ok"
	if !res.OK {
		status, code = "error", string(res.Code)
	}
	m.validationTotal.WithLabelValues(status, code).Inc()
	m.validationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// MustRegister registers the metrics with registry. Duplicate registration
// is ignored.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.validationTotal, m.validationDuration} {
		if err := registry.Register(c); err != nil && !isAlreadyRegistered(err) {
			panic(err)
		}
	}
}

func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}

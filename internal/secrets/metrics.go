package secrets

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for secret resolution.
var (
	secretsOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitegate",
			Subsystem: "secrets",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of secret resolution in seconds",
			Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
		},
		[]string{"source", "result"},
	)

	secretsOperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Subsystem: "secrets",
			Name:      "resolve_total",
			Help:      "Total number of secret resolutions",
		},
		[]string{"source", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		secretsOperationDuration,
		secretsOperationTotal,
	)
}

// RecordOperation records metrics for one secret resolution.
func RecordOperation(source string, duration time.Duration, err error) {
	if source == "" {
		source = "invalid"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	secretsOperationDuration.WithLabelValues(source, result).Observe(duration.Seconds())
	secretsOperationTotal.WithLabelValues(source, result).Inc()
}

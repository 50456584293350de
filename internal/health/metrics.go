package health

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthMetrics holds Prometheus metrics for health checks.
type HealthMetrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = NewHealthMetrics("sitegate")
	})
	return healthMetricsInstance
}

// NewHealthMetrics creates unregistered health metrics.
func NewHealthMetrics(namespace string) *HealthMetrics {
	if namespace == "" {
		namespace = "sitegate"
	}
	return &HealthMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of readiness checks performed",
			},
			[]string{"check", "status"},
		),
		checkStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Last readiness check status (1=pass or skipped, 0=fail)",
			},
			[]string{"check"},
		),
	}
}

func (m *HealthMetrics) record(check, status string) {
	m.checksTotal.WithLabelValues(check, status).Inc()
	value := 1.0
	if status == StatusFail {
		value = 0
	}
	m.checkStatus.WithLabelValues(check).Set(value)
}

// Init pre-initializes the known checks so they appear in /metrics before
// the first probe.
func (m *HealthMetrics) Init() {
	for _, check := range []string{CheckGraph, CheckSharePoint, CheckRedis} {
		for _, status := range []string{StatusPass, StatusFail, StatusSkipped} {
			m.checksTotal.WithLabelValues(check, status)
		}
	}
}

// MustRegister registers the metrics with registry. Duplicate registration
// is ignored.
func (m *HealthMetrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.checksTotal, m.checkStatus} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

package auth

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/sitegate/internal/auth/apikey"
)

// Outcome labels besides the apikey failure codes.
const (
	outcomeOK          = "ok"
	outcomeRateLimited = "rate_limited"
)

// Metrics holds Prometheus metrics for the authentication gate.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetSharedMetrics returns the singleton gate Metrics instance.
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
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "requests_total",
				Help:      "Total number of gated requests by outcome",
			},
			[]string{"outcome", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "request_duration_seconds",
				Help:      "Time spent in the authentication gate in seconds",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"outcome"},
		),
	}
}

// Init pre-initializes every outcome so series appear before the first request.
func (m *Metrics) Init() {
	m.requestsTotal.WithLabelValues(outcomeOK, "200")
	m.requestsTotal.WithLabelValues(outcomeRateLimited, "429")
	for _, code := range apikey.AllCodes {
		m.requestsTotal.WithLabelValues(string(code), strconv.Itoa(StatusFor(code)))
	}
}

// RecordOutcome records one gate decision.
func (m *Metrics) RecordOutcome(outcome string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(outcome, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// MustRegister registers the metrics with registry. Duplicate registration
// is ignored.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

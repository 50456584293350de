package oauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values.
const (
	tierLocal  = "local"
	tierRemote = "remote"

	resultSuccess  = "success"
	resultFailure  = "failure"
	resultFallback = "fallback"
)

var (
	tokenRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Subsystem: "oauth",
			Name:      "token_request_total",
			Help:      "Total number of token endpoint requests",
		},
		[]string{"result"},
	)

	tokenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitegate",
			Subsystem: "oauth",
			Name:      "token_request_duration_seconds",
			Help:      "Duration of token endpoint requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	tokenCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Subsystem: "oauth",
			Name:      "token_cache_hits_total",
			Help:      "Total number of token cache hits by tier",
		},
		[]string{"tier"},
	)

	tokenServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegate",
			Subsystem: "oauth",
			Name:      "token_served_total",
			Help:      "Total number of tokens handed to callers by outcome",
		},
		[]string{"result"},
	)

	consecutiveFailuresGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sitegate",
			Subsystem: "oauth",
			Name:      "consecutive_failures",
			Help:      "Current number of consecutive token acquisition failures",
		},
	)

	fallbackModeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sitegate",
			Subsystem: "oauth",
			Name:      "fallback_mode",
			Help:      "1 while the supplier is in fallback mode",
		},
	)
)

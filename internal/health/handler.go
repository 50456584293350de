package health

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// DefaultReadinessProbeTimeout bounds one readiness run.
const DefaultReadinessProbeTimeout = 5 * time.Second

// Info describes the running build.
type Info struct {
	Version     string
	Environment string
}

// Handler serves the health endpoints.
type Handler struct {
	info      Info
	checks    []HealthCheck
	logger    observability.Logger
	metrics   *HealthMetrics
	timeout   time.Duration
	mu        sync.RWMutex
	startTime time.Time
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics sets the metrics sink.
func WithMetrics(m *HealthMetrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithTimeout bounds each readiness run.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// LivenessStatus is the /healthz body.
type LivenessStatus struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Environment string `json:"environment"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message,omitempty"`
}

// ReadinessStatus is the /readyz body.
type ReadinessStatus struct {
	Status           string        `json:"status"`
	Checks           []CheckResult `json:"checks"`
	OverallLatencyMS int64         `json:"overall_latency_ms"`
}

// NewHandler creates a health handler.
func NewHandler(info Info, logger observability.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	h := &Handler{
		info:      info,
		logger:    logger,
		metrics:   GetHealthMetrics(),
		timeout:   DefaultReadinessProbeTimeout,
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck adds a readiness check. Checks are reported in the order added.
func (h *Handler) AddCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// RemoveCheck removes a readiness check by name.
func (h *Handler) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, check := range h.checks {
		if check.Name() == name {
			h.checks = append(h.checks[:i], h.checks[i+1:]...)
			return
		}
	}
}

// Liveness reports process status.
func (h *Handler) Liveness() LivenessStatus {
	return LivenessStatus{
		Status:      StatusOK,
		Version:     h.info.Version,
		Uptime:      h.now().Sub(h.startTime).Round(time.Second).String(),
		Environment: h.info.Environment,
	}
}

// Readiness runs every check concurrently.
func (h *Handler) Readiness(ctx context.Context) *ReadinessStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := h.now()
	status := &ReadinessStatus{
		Status: StatusReady,
		Checks: make([]CheckResult, len(checks)),
	}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			status.Checks[i] = h.run(ctx, c)
		}(i, check)
	}
	wg.Wait()

	for _, result := range status.Checks {
		if result.Status == StatusFail {
			status.Status = StatusDegraded
		}
	}
	status.OverallLatencyMS = h.now().Sub(start).Milliseconds()
	return status
}

func (h *Handler) run(ctx context.Context, c HealthCheck) CheckResult {
	start := h.now()
	err := c.Check(ctx)
	duration := h.now().Sub(start)

	result := CheckResult{
		Name:      c.Name(),
		Status:    StatusPass,
		LatencyMS: duration.Milliseconds(),
		UpdatedAt: h.now().UTC(),
	}

	switch {
	case errors.Is(err, ErrSkipped):
		result.Status = StatusSkipped
		result.Message = strings.TrimPrefix(err.Error(), ErrSkipped.Error()+": ")
	case err != nil:
		result.Status = StatusFail
		result.Message = err.Error()
		h.logger.WithContext(ctx).Warn("health check failed",
			observability.String("check", c.Name()),
			observability.Error(err),
			observability.Duration("duration", duration),
		)
	}

	h.metrics.record(result.Name, result.Status)
	return result
}

// LivenessHandler serves /healthz.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Liveness())
	}
}

// ReadinessHandler serves /readyz.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.Readiness(c.Request.Context())

		statusCode := http.StatusOK
		if status.Status != StatusReady {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, status)
	}
}

// RegisterRoutes registers the probe routes on a Gin router.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.LivenessHandler())
	r.GET("/readyz", h.ReadinessHandler())
}

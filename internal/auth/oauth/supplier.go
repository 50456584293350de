package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/sitegate/internal/cache"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Supplier defaults.
const (
	DefaultRefreshBuffer        = 60 * time.Second
	DefaultMaxCacheAge          = 50 * time.Minute
	DefaultFallbackWindow       = 15 * time.Minute
	DefaultRequestTimeout       = 10 * time.Second
	DefaultFailureWarnThreshold = 3
	DefaultFallbackThreshold    = 5

	// minRemoteTTL is the floor applied to distributed-cache TTLs.
	minRemoteTTL = 60 * time.Second
)

// Config configures a Supplier.
type Config struct {
	// TenantID is the identity-provider directory id; it is part of the cache key.
	TenantID      string
	ClientID      string
	ClientSecret  string
	TokenEndpoint string
	Scope         string

	// KeyPrefix namespaces the distributed-cache key.
	KeyPrefix string

	RefreshBuffer        time.Duration
	MaxCacheAge          time.Duration
	FallbackWindow       time.Duration
	RequestTimeout       time.Duration
	FailureWarnThreshold int
	FallbackThreshold    int
}

func (c *Config) applyDefaults() {
	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = DefaultRefreshBuffer
	}
	if c.MaxCacheAge <= 0 {
		c.MaxCacheAge = DefaultMaxCacheAge
	}
	if c.FallbackWindow <= 0 {
		c.FallbackWindow = DefaultFallbackWindow
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.FailureWarnThreshold <= 0 {
		c.FailureWarnThreshold = DefaultFailureWarnThreshold
	}
	if c.FallbackThreshold <= 0 {
		c.FallbackThreshold = DefaultFallbackThreshold
	}
}

// CacheKey returns the distributed-cache key for tenantID and clientID.
func CacheKey(prefix, tenantID, clientID string) string {
	return fmt.Sprintf("%s:token:%s:%s", prefix, tenantID, clientID)
}

// Stats is a snapshot of supplier state.
type Stats struct {
	ConsecutiveFailures int
	FallbackMode        bool
	HasToken            bool
	ExpiresAt           time.Time
	CachedAt            time.Time
}

// Supplier hands out access tokens, caching them in two tiers.
type Supplier struct {
	cfg        Config
	client     *Client
	store      *LayeredStore
	remoteKey  string
	logger     observability.Logger
	tracer     trace.Tracer
	now        func() time.Time
	httpClient *http.Client
	remote     cache.Cache

	group singleflight.Group

	mu       sync.Mutex
	failures int
	fallback bool
}

// Option is a functional option for the supplier.
type Option func(*Supplier)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Supplier) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Supplier) {
		s.now = now
	}
}

// WithCache sets the distributed tier. Without it only the local tier is used.
func WithCache(c cache.Cache) Option {
	return func(s *Supplier) {
		s.remote = c
	}
}

// WithHTTPClient sets the HTTP client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supplier) {
		s.httpClient = c
	}
}

// NewSupplier returns a Supplier for cfg.
func NewSupplier(cfg Config, opts ...Option) (*Supplier, error) {
	cfg.applyDefaults()

	s := &Supplier{
		cfg:    cfg,
		logger: observability.NopLogger(),
		tracer: observability.Tracer("oauth"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	client, err := NewClient(cfg.TokenEndpoint, cfg.ClientID, cfg.ClientSecret, cfg.Scope, s.httpClient, s.logger)
	if err != nil {
		return nil, err
	}
	client.now = s.now
	s.client = client

	s.remoteKey = CacheKey(cfg.KeyPrefix, cfg.TenantID, cfg.ClientID)
	var remote TokenStore
	if s.remote != nil {
		remote = NewRemoteStore(s.remote, s.remoteKey, s.logger)
	}
	s.store = NewLayeredStore(NewMemoryStore(), remote, func(e *Entry) bool {
		return e.Fresh(s.now(), s.cfg.RefreshBuffer)
	})

	return s, nil
}

// Token returns a usable access token. Only the acquisition shared by all
// concurrent callers talks to the network; ctx bounds this caller's wait,
// not the shared attempt.
func (s *Supplier) Token(ctx context.Context) (string, error) {
	if e, err := s.store.Local.Get(ctx); err == nil && e.Fresh(s.now(), s.cfg.RefreshBuffer) {
		tokenCacheHits.WithLabelValues(tierLocal).Inc()
		tokenServedTotal.WithLabelValues(resultSuccess).Inc()
		return e.Token, nil
	}

	ch := s.group.DoChan(s.remoteKey, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		return s.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh runs inside the single flight.
func (s *Supplier) refresh(ctx context.Context) (string, error) {
	if e, err := s.store.Local.Get(ctx); err == nil && e.Fresh(s.now(), s.cfg.RefreshBuffer) {
		tokenCacheHits.WithLabelValues(tierLocal).Inc()
		tokenServedTotal.WithLabelValues(resultSuccess).Inc()
		return e.Token, nil
	}

	if s.store.Remote != nil {
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		e, err := s.store.Get(readCtx)
		cancel()
		if err == nil {
			tokenCacheHits.WithLabelValues(tierRemote).Inc()
			tokenServedTotal.WithLabelValues(resultSuccess).Inc()
			s.logger.Debug("adopted token from distributed cache",
				observability.Time("expires_at", e.ExpiresAt))
			return e.Token, nil
		}
	}

	entry, err := s.acquire(ctx)
	if err == nil {
		s.recordSuccess()
		s.persist(ctx, entry)
		tokenServedTotal.WithLabelValues(resultSuccess).Inc()
		return entry.Token, nil
	}

	if !s.recordFailure(err) {
		tokenServedTotal.WithLabelValues(resultFailure).Inc()
		return "", err
	}

	stale, lerr := s.store.Local.Get(ctx)
	now := s.now()
	if lerr != nil || !stale.WithinFallback(now, s.cfg.FallbackWindow) {
		tokenServedTotal.WithLabelValues(resultFailure).Inc()
		return "", err
	}

	s.logger.Warn("serving stale token in fallback mode",
		observability.Duration("age", now.Sub(stale.CachedAt)),
		observability.Duration("past_expiry", now.Sub(stale.ExpiresAt)))
	tokenServedTotal.WithLabelValues(resultFallback).Inc()
	return stale.Token, nil
}

func (s *Supplier) acquire(ctx context.Context) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "oauth.AcquireToken", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	entry, err := s.client.Acquire(ctx)

	result := resultSuccess
	if err != nil {
		result = resultFailure
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	tokenRequestTotal.WithLabelValues(result).Inc()
	tokenRequestDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return entry, err
}

// persist writes both tiers. A distributed-cache failure is logged only.
func (s *Supplier) persist(ctx context.Context, e *Entry) {
	ttl := s.remoteTTL(e)

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := s.store.Set(writeCtx, e, ttl); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("failed to write token to distributed cache", observability.Error(err))
	}
}

// remoteTTL is min(maxCacheAge, max(floor, expiresAt - now)).
func (s *Supplier) remoteTTL(e *Entry) time.Duration {
	ttl := e.ExpiresAt.Sub(s.now())
	if ttl < minRemoteTTL {
		ttl = minRemoteTTL
	}
	if ttl > s.cfg.MaxCacheAge {
		ttl = s.cfg.MaxCacheAge
	}
	return ttl
}

func (s *Supplier) recordSuccess() {
	s.mu.Lock()
	wasFallback := s.fallback
	s.failures = 0
	s.fallback = false
	s.mu.Unlock()

	consecutiveFailuresGauge.Set(0)
	fallbackModeGauge.Set(0)
	if wasFallback {
		s.logger.Info("token acquisition recovered; leaving fallback mode")
	}
}

// recordFailure counts a failure and reports whether fallback mode is on.
func (s *Supplier) recordFailure(err error) bool {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	entered := false
	if failures >= s.cfg.FallbackThreshold && !s.fallback {
		s.fallback = true
		entered = true
	}
	fallback := s.fallback
	s.mu.Unlock()

	consecutiveFailuresGauge.Set(float64(failures))

	s.logger.Error("failed to acquire access token",
		observability.Int("attempts", failures),
		observability.Error(err))

	if failures >= s.cfg.FailureWarnThreshold {
		s.logger.Error("token acquisition failing repeatedly; check client credentials and network reachability",
			observability.Int("attempts", failures))
	}
	if entered {
		fallbackModeGauge.Set(1)
		s.logger.Error("entering token fallback mode; last known token will be served if available")
	}
	return fallback
}

// Stats returns a snapshot of supplier state.
func (s *Supplier) Stats() Stats {
	s.mu.Lock()
	st := Stats{ConsecutiveFailures: s.failures, FallbackMode: s.fallback}
	s.mu.Unlock()

	if e, err := s.store.Local.Get(context.Background()); err == nil {
		st.HasToken = true
		st.ExpiresAt = e.ExpiresAt
		st.CachedAt = e.CachedAt
	}
	return st
}

// Invalidate drops the cached token from both tiers, e.g. after the
// downstream API rejected it.
func (s *Supplier) Invalidate(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("failed to clear distributed token cache", observability.Error(err))
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/sitegate/internal/apierror"
	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/health"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// ServiceName names the tracer and the service in logs.
const ServiceName = "sitegate"

// DefaultMaxRequestBodySize caps API request bodies.
const DefaultMaxRequestBodySize = 1 << 20

var ginModeOnce sync.Once

// Gate authenticates API requests.
type Gate interface {
	Middleware() gin.HandlerFunc
}

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Health  *health.Handler
	Gate    Gate
	Service Provisioner
}

// Server owns the API and metrics listeners.
type Server struct {
	cfg      config.ServerConfig
	engine   *gin.Engine
	logger   observability.Logger
	metrics  *Metrics
	gatherer prometheus.Gatherer

	mu            sync.Mutex
	httpServer    *http.Server
	metricsServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the HTTP metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// New builds the router for deps.
func New(cfg config.ServerConfig, deps Deps, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	s := &Server{
		cfg:      cfg,
		logger:   observability.NopLogger(),
		metrics:  GetSharedMetrics(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = s.buildEngine(deps)
	return s
}

func (s *Server) buildEngine(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		RequestID(),
		Logging(s.logger, s.metrics),
		Recovery(s.logger, s.metrics),
		Tracing(ServiceName),
		BodyLimit(DefaultMaxRequestBodySize),
	)
	// The gate lets its public paths through, so it guards unknown routes too.
	if deps.Gate != nil {
		engine.Use(deps.Gate.Middleware())
	}

	engine.NoRoute(func(c *gin.Context) {
		apierror.Abort(c, http.StatusNotFound, apierror.NotFound, "Route not found", nil)
	})
	engine.NoMethod(func(c *gin.Context) {
		apierror.Abort(c, http.StatusMethodNotAllowed, apierror.MethodNotAllowed, "Method not allowed", nil)
	})

	if deps.Health != nil {
		deps.Health.RegisterRoutes(engine)
	}

	if deps.Service != nil {
		h := &handlers{svc: deps.Service, logger: s.logger, now: time.Now}

		engine.POST("/provision", h.provision)
		engine.GET("/list", h.list)
		engine.POST("/share", h.share)
	}

	return engine
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// MetricsHandler returns the Prometheus handler for the metrics listener.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: 10,
		Timeout:             s.cfg.WriteTimeout.Duration(),
		EnableOpenMetrics:   true,
	}))
	return mux
}

// Run serves both listeners until ctx is cancelled or one fails, then shuts
// both down within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		MaxHeaderBytes:    1 << 20,
	}
	if s.cfg.MetricsAddress != "" {
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsAddress,
			Handler:           s.MetricsHandler(),
			ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		}
	}
	servers := []*http.Server{s.httpServer}
	if s.metricsServer != nil {
		servers = append(servers, s.metricsServer)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.logger.Info("starting HTTP listener", observability.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listener %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	servers := []*http.Server{s.httpServer, s.metricsServer}
	s.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", srv.Addr, err))
		}
	}
	s.logger.Info("HTTP listeners stopped")
	return errors.Join(errs...)
}

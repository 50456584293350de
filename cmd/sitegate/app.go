package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/sitegate/internal/auth"
	"github.com/vyrodovalexey/sitegate/internal/auth/apikey"
	"github.com/vyrodovalexey/sitegate/internal/auth/oauth"
	"github.com/vyrodovalexey/sitegate/internal/cache"
	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/health"
	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/provision"
	"github.com/vyrodovalexey/sitegate/internal/secrets"
	"github.com/vyrodovalexey/sitegate/internal/server"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// application holds all application components.
type application struct {
	config   *config.Config
	logger   observability.Logger
	cache    cache.Cache
	tenants  *tenant.Registry
	keys     *apikey.Registry
	supplier *oauth.Supplier
	graph    *graph.Client
	service  *provision.Service
	limiter  *auth.KeyLimiter
	health   *health.Handler
	server   *server.Server
}

// initApplication wires the application and registers its metrics with the
// default Prometheus registry.
func initApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	return newApplication(cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func newApplication(
	cfg *config.Config,
	logger observability.Logger,
	registerer prometheus.Registerer,
	gatherer prometheus.Gatherer,
) (*application, error) {
	app := &application{config: cfg, logger: logger}

	clientSecret, err := resolveClientSecret(cfg.Identity.ClientSecret)
	if err != nil {
		return nil, err
	}

	app.cache, err = cache.New(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cache: %w", err)
	}

	app.tenants = tenant.NewRegistry(cfg.Tenants, cfg.SharePoint, logger)

	keyMetrics := apikey.GetSharedMetrics()
	app.keys = apikey.NewRegistry(cfg.APIKeys, app.tenants,
		apikey.WithLogger(logger),
		apikey.WithMetrics(keyMetrics),
	)
	clientSecretSource := secrets.Describe(cfg.Identity.ClientSecret)
	dropInlineSecrets(cfg)

	keyPrefix := config.DefaultRedisKeyPrefix
	if cfg.Redis != nil && cfg.Redis.KeyPrefix != "" {
		keyPrefix = cfg.Redis.KeyPrefix
	}
	app.supplier, err = oauth.NewSupplier(oauth.Config{
		TenantID:             cfg.Identity.TenantID,
		ClientID:             cfg.Identity.ClientID,
		ClientSecret:         clientSecret,
		TokenEndpoint:        cfg.Identity.TokenEndpoint,
		Scope:                cfg.Identity.Scope,
		KeyPrefix:            keyPrefix,
		RefreshBuffer:        cfg.Identity.RefreshBuffer.Duration(),
		MaxCacheAge:          cfg.Identity.TokenCacheTTL.Duration(),
		FallbackWindow:       cfg.Identity.FallbackWindow.Duration(),
		RequestTimeout:       cfg.Identity.RequestTimeout.Duration(),
		FailureWarnThreshold: cfg.Identity.FailureWarnThreshold,
		FallbackThreshold:    cfg.Identity.FallbackThreshold,
	},
		oauth.WithLogger(logger),
		oauth.WithCache(app.cache),
	)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize token supplier: %w", err)
	}

	graphMetrics := graph.GetSharedMetrics()
	app.graph = graph.New(cfg.Graph, app.supplier,
		graph.WithLogger(logger),
		graph.WithMetrics(graphMetrics),
	)

	app.service = provision.NewService(app.graph,
		provision.WithLogger(logger),
		provision.WithSettings(cfg.SharePoint),
	)

	app.limiter = auth.NewKeyLimiterFromConfig(cfg.Auth.RateLimit, logger)
	authMetrics := auth.GetSharedMetrics()
	gateOpts := []auth.Option{
		auth.WithRealm(cfg.Auth.Realm),
		auth.WithAPIKeyHeader(cfg.Auth.APIKeyHeader),
		auth.WithLogger(logger),
		auth.WithMetrics(authMetrics),
	}
	if app.limiter != nil {
		gateOpts = append(gateOpts, auth.WithRateLimit(app.limiter))
	}
	gate := auth.NewGate(app.keys, gateOpts...)

	healthMetrics := health.GetHealthMetrics()
	app.health = health.NewHandler(
		health.Info{Version: version, Environment: cfg.Environment},
		logger,
		health.WithMetrics(healthMetrics),
	)
	app.health.AddCheck(health.GraphCheck(app.supplier, app.graph))
	app.health.AddCheck(health.SharePointCheck(app.probeHost(), app.graph))
	app.health.AddCheck(health.RedisCheck(app.cache))

	serverMetrics := server.GetSharedMetrics()
	app.server = server.New(cfg.Server, server.Deps{
		Health:  app.health,
		Gate:    gate,
		Service: app.service,
	},
		server.WithLogger(logger),
		server.WithMetrics(serverMetrics),
		server.WithGatherer(gatherer),
	)

	keyMetrics.MustRegister(registerer)
	authMetrics.MustRegister(registerer)
	graphMetrics.MustRegister(registerer)
	healthMetrics.MustRegister(registerer)
	serverMetrics.MustRegister(registerer)
	cacheMetrics := cache.GetCacheMetrics()
	cacheMetrics.Init()
	cacheMetrics.MustRegister(registerer)

	logger.Info("application initialized",
		observability.Int("tenants", app.tenants.Len()),
		observability.Int("api_keys", app.keys.Len()),
		observability.Int("skipped_api_keys", len(app.keys.Skipped())),
		observability.String("client_secret", clientSecretSource),
	)

	return app, nil
}

// resolveClientSecret reads the identity client secret and wipes the
// intermediate buffer.
func resolveClientSecret(source secrets.Source) (string, error) {
	raw, err := secrets.Resolve("identity.clientSecret", source)
	if err != nil {
		return "", fmt.Errorf("failed to resolve client secret: %w", err)
	}
	defer secrets.Wipe(raw)
	return string(raw), nil
}

// dropInlineSecrets clears inline secret values from cfg once they have been
// hashed or handed to the token client, so the retained config holds none.
func dropInlineSecrets(cfg *config.Config) {
	cfg.Identity.ClientSecret.Value = nil
	for i := range cfg.APIKeys {
		for j := range cfg.APIKeys[i].Secrets {
			cfg.APIKeys[i].Secrets[j].Value = nil
		}
	}
}

// probeHost is the SharePoint host the readiness check calls: the global
// host, else the default tenant's.
func (a *application) probeHost() string {
	if a.config.SharePoint.Host != "" {
		return a.config.SharePoint.Host
	}
	if t, ok := a.tenants.Default(); ok {
		return t.Site.Host
	}
	return ""
}

// run serves until ctx is cancelled, then releases resources.
func (a *application) run(ctx context.Context) error {
	if a.limiter != nil {
		a.limiter.StartAutoCleanup()
	}
	defer a.close()

	a.logger.Info("sitegate started",
		observability.String("address", a.config.Server.Address),
		observability.String("metrics_address", a.config.Server.MetricsAddress),
	)
	err := a.server.Run(ctx)
	a.logger.Info("sitegate stopped")
	return err
}

func (a *application) close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close token cache", observability.Error(err))
		}
	}
}

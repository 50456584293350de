package config

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/secrets"
)

// Site kinds supported for tenant collaboration sites.
const (
	SiteTypeTeam          = "team"
	SiteTypeCommunication = "communication"
)

// Defaults applied by applyDefaults.
const (
	DefaultServerAddress      = ":8080"
	DefaultMetricsAddress     = ":9090"
	DefaultEnvironment        = "development"
	DefaultSiteDisplayName    = "Collaboration Site"
	DefaultGraphBaseURL       = "https://graph.microsoft.com/v1.0"
	DefaultScope              = "https://graph.microsoft.com/.default"
	DefaultTokenEndpointFmt   = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	DefaultRefreshBuffer      = 60 * time.Second
	DefaultTokenCacheTTL      = 50 * time.Minute
	DefaultFallbackWindow     = 15 * time.Minute
	DefaultTokenTimeout       = 10 * time.Second
	DefaultGraphTimeout       = 30 * time.Second
	DefaultFailureWarnAfter   = 3
	DefaultFallbackAfter      = 5
	DefaultRedisKeyPrefix     = "sitegate"
	DefaultAPIKeyHeader       = "X-Api-Key"
	DefaultRealm              = "sitegate-api"
	DefaultReadTimeout        = 30 * time.Second
	DefaultWriteTimeout       = 60 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultRedisConnectTimout = 5 * time.Second
	DefaultRedisOpTimeout     = 2 * time.Second
	DefaultProvisionAttempts  = 10
	DefaultProvisionInterval  = 5 * time.Second
	DefaultEditorsGroup       = "Elion-Editors"
	DefaultViewersGroup       = "Elion-Viewers"
)

// Config is the root sitegate configuration.
type Config struct {
	// Environment is a free-form deployment label reported by /healthz.
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty"`

	Server     ServerConfig       `yaml:"server" json:"server"`
	Logging    LoggingConfig      `yaml:"logging" json:"logging"`
	Identity   IdentityConfig     `yaml:"identity" json:"identity"`
	Redis      *RedisConfig       `yaml:"redis,omitempty" json:"redis,omitempty"`
	Graph      GraphConfig        `yaml:"graph" json:"graph"`
	SharePoint SharePointDefaults `yaml:"sharepoint" json:"sharepoint"`
	Auth       AuthConfig         `yaml:"auth" json:"auth"`

	Tenants []TenantConfig `yaml:"tenants" json:"tenants" validate:"dive"`
	APIKeys []APIKeyConfig `yaml:"apiKeys" json:"apiKeys" validate:"dive"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Address         string   `yaml:"address,omitempty" json:"address,omitempty"`
	MetricsAddress  string   `yaml:"metricsAddress,omitempty" json:"metricsAddress,omitempty"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=json console"`
	Output string `yaml:"output,omitempty" json:"output,omitempty" validate:"omitempty,oneof=stdout stderr"`
}

// IdentityConfig configures the OAuth client-credentials grant against the
// identity provider.
type IdentityConfig struct {
	// TenantID is the directory (identity provider) tenant, not a sitegate tenant.
	TenantID     string         `yaml:"tenantId" json:"tenantId" validate:"required"`
	ClientID     string         `yaml:"clientId" json:"clientId" validate:"required"`
	ClientSecret secrets.Source `yaml:"clientSecret" json:"clientSecret"`

	TokenEndpoint string `yaml:"tokenEndpoint,omitempty" json:"tokenEndpoint,omitempty" validate:"omitempty,url"`
	Scope         string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// RefreshBuffer is subtracted from the token expiry when judging freshness.
	RefreshBuffer Duration `yaml:"refreshBuffer,omitempty" json:"refreshBuffer,omitempty"`

	// TokenCacheTTL caps how long a token is kept in the distributed cache.
	TokenCacheTTL Duration `yaml:"tokenCacheTTL,omitempty" json:"tokenCacheTTL,omitempty"`

	// FallbackWindow is how long past expiry a token may still be served in fallback mode.
	FallbackWindow Duration `yaml:"fallbackWindow,omitempty" json:"fallbackWindow,omitempty"`

	// RequestTimeout bounds one token endpoint call.
	RequestTimeout Duration `yaml:"requestTimeout,omitempty" json:"requestTimeout,omitempty"`

	FailureWarnThreshold int `yaml:"failureWarnThreshold,omitempty" json:"failureWarnThreshold,omitempty" validate:"gte=0"`
	FallbackThreshold    int `yaml:"fallbackThreshold,omitempty" json:"fallbackThreshold,omitempty" validate:"gte=0"`
}

// RedisConfig configures the distributed token cache. A nil config or an
// empty URL disables the distributed tier.
type RedisConfig struct {
	URL            string   `yaml:"url,omitempty" json:"url,omitempty" validate:"omitempty,url"`
	TLS            bool     `yaml:"tls,omitempty" json:"tls,omitempty"`
	KeyPrefix      string   `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
	PoolSize       int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty" validate:"gte=0"`
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`
	ReadTimeout    Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout   Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
}

// Enabled reports whether the distributed cache is configured.
func (r *RedisConfig) Enabled() bool {
	return r != nil && r.URL != ""
}

// GraphConfig configures calls to Microsoft Graph.
type GraphConfig struct {
	BaseURL string   `yaml:"baseURL,omitempty" json:"baseURL,omitempty" validate:"omitempty,url"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// BreakerThreshold is the number of requests sampled before the circuit
	// breaker may trip. Zero disables the breaker.
	BreakerThreshold int      `yaml:"breakerThreshold,omitempty" json:"breakerThreshold,omitempty" validate:"gte=0"`
	BreakerTimeout   Duration `yaml:"breakerTimeout,omitempty" json:"breakerTimeout,omitempty"`
}

// SharePointDefaults are the global site settings tenants fall back to.
type SharePointDefaults struct {
	SiteDisplayName string `yaml:"siteDisplayName,omitempty" json:"siteDisplayName,omitempty"`
	SiteType        string `yaml:"siteType,omitempty" json:"siteType,omitempty" validate:"omitempty,oneof=team communication"`
	Host            string `yaml:"host,omitempty" json:"host,omitempty" validate:"omitempty,url"`

	// ProvisionAttempts bounds the polls for a new team site's SharePoint site.
	ProvisionAttempts int      `yaml:"provisionAttempts,omitempty" json:"provisionAttempts,omitempty" validate:"gte=0"`
	ProvisionInterval Duration `yaml:"provisionInterval,omitempty" json:"provisionInterval,omitempty"`

	// EditorsGroup and ViewersGroup name the security groups granted
	// write and read on the restricted library.
	EditorsGroup string `yaml:"editorsGroup,omitempty" json:"editorsGroup,omitempty"`
	ViewersGroup string `yaml:"viewersGroup,omitempty" json:"viewersGroup,omitempty"`
}

// AuthConfig configures the authentication gate.
type AuthConfig struct {
	APIKeyHeader string           `yaml:"apiKeyHeader,omitempty" json:"apiKeyHeader,omitempty"`
	Realm        string           `yaml:"realm,omitempty" json:"realm,omitempty"`
	RateLimit    *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// RateLimitConfig configures per-API-key rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty" validate:"gte=0"`
	Burst             int     `yaml:"burst,omitempty" json:"burst,omitempty" validate:"gte=0"`
}

// TenantConfig is one tenant as written in configuration.
type TenantConfig struct {
	ID         string            `yaml:"id" json:"id" validate:"required"`
	Name       string            `yaml:"name" json:"name"`
	Active     *bool             `yaml:"active,omitempty" json:"active,omitempty"`
	SharePoint TenantSiteConfig  `yaml:"sharepoint" json:"sharepoint"`
	Metadata   map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// TenantSiteConfig holds per-tenant site overrides. Empty fields fall back
// to SharePointDefaults.
type TenantSiteConfig struct {
	SiteDisplayName string `yaml:"siteDisplayName,omitempty" json:"siteDisplayName,omitempty"`
	SiteType        string `yaml:"siteType,omitempty" json:"siteType,omitempty" validate:"omitempty,oneof=team communication"`
	Host            string `yaml:"host,omitempty" json:"host,omitempty" validate:"omitempty,url"`
	SitePath        string `yaml:"sitePath,omitempty" json:"sitePath,omitempty"`
}

// APIKeyConfig is one API key as written in configuration.
type APIKeyConfig struct {
	ID            string            `yaml:"id" json:"id" validate:"required"`
	Name          string            `yaml:"name,omitempty" json:"name,omitempty"`
	TenantID      string            `yaml:"tenantId" json:"tenantId"`
	Roles         []string          `yaml:"roles" json:"roles"`
	Active        *bool             `yaml:"active,omitempty" json:"active,omitempty"`
	ExpiresAt     string            `yaml:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	CreatedAt     string            `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
	LastRotatedAt string            `yaml:"lastRotatedAt,omitempty" json:"lastRotatedAt,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Secrets       []APIKeySecret    `yaml:"secrets" json:"secrets"`
}

// APIKeySecret is one secret version of an API key.
type APIKeySecret struct {
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	Active    *bool  `yaml:"active,omitempty" json:"active,omitempty"`
	NotBefore string `yaml:"notBefore,omitempty" json:"notBefore,omitempty"`
	ExpiresAt string `yaml:"expiresAt,omitempty" json:"expiresAt,omitempty"`

	secrets.Source `yaml:",inline"`
}

// IsActive returns the effective active flag; absent means active.
func IsActive(flag *bool) bool {
	return flag == nil || *flag
}

// DefaultConfig returns a configuration with every default applied and no
// tenants, keys or identity credentials.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-valued settings with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}

	applyServerDefaults(&cfg.Server)
	applyIdentityDefaults(&cfg.Identity)

	if cfg.Redis != nil {
		if cfg.Redis.KeyPrefix == "" {
			cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
		}
		if cfg.Redis.ConnectTimeout == 0 {
			cfg.Redis.ConnectTimeout = Duration(DefaultRedisConnectTimout)
		}
		if cfg.Redis.ReadTimeout == 0 {
			cfg.Redis.ReadTimeout = Duration(DefaultRedisOpTimeout)
		}
		if cfg.Redis.WriteTimeout == 0 {
			cfg.Redis.WriteTimeout = Duration(DefaultRedisOpTimeout)
		}
	}

	if cfg.Graph.BaseURL == "" {
		cfg.Graph.BaseURL = DefaultGraphBaseURL
	}
	if cfg.Graph.Timeout == 0 {
		cfg.Graph.Timeout = Duration(DefaultGraphTimeout)
	}

	if cfg.SharePoint.SiteDisplayName == "" {
		cfg.SharePoint.SiteDisplayName = DefaultSiteDisplayName
	}
	if cfg.SharePoint.SiteType == "" {
		cfg.SharePoint.SiteType = SiteTypeTeam
	}
	if cfg.SharePoint.ProvisionAttempts == 0 {
		cfg.SharePoint.ProvisionAttempts = DefaultProvisionAttempts
	}
	if cfg.SharePoint.ProvisionInterval == 0 {
		cfg.SharePoint.ProvisionInterval = Duration(DefaultProvisionInterval)
	}
	if cfg.SharePoint.EditorsGroup == "" {
		cfg.SharePoint.EditorsGroup = DefaultEditorsGroup
	}
	if cfg.SharePoint.ViewersGroup == "" {
		cfg.SharePoint.ViewersGroup = DefaultViewersGroup
	}

	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Auth.Realm == "" {
		cfg.Auth.Realm = DefaultRealm
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.Address == "" {
		s.Address = DefaultServerAddress
	}
	if s.MetricsAddress == "" {
		s.MetricsAddress = DefaultMetricsAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
}

func applyIdentityDefaults(id *IdentityConfig) {
	if id.TokenEndpoint == "" && id.TenantID != "" {
		id.TokenEndpoint = fmt.Sprintf(DefaultTokenEndpointFmt, id.TenantID)
	}
	if id.Scope == "" {
		id.Scope = DefaultScope
	}
	if id.RefreshBuffer == 0 {
		id.RefreshBuffer = Duration(DefaultRefreshBuffer)
	}
	if id.TokenCacheTTL == 0 {
		id.TokenCacheTTL = Duration(DefaultTokenCacheTTL)
	}
	if id.FallbackWindow == 0 {
		id.FallbackWindow = Duration(DefaultFallbackWindow)
	}
	if id.RequestTimeout == 0 {
		id.RequestTimeout = Duration(DefaultTokenTimeout)
	}
	if id.FailureWarnThreshold == 0 {
		id.FailureWarnThreshold = DefaultFailureWarnAfter
	}
	if id.FallbackThreshold == 0 {
		id.FallbackThreshold = DefaultFallbackAfter
	}
}

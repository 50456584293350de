package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/sitegate/internal/apierror"
	"github.com/vyrodovalexey/sitegate/internal/auth/apikey"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Authenticator decides whether a presented credential is valid.
// *apikey.Registry implements it.
type Authenticator interface {
	Authenticate(candidate string) apikey.Result
}

// Gate is the HTTP authentication gate.
type Gate struct {
	authenticator Authenticator
	realm         string
	apiKeyHeader  string
	publicPaths   map[string]struct{}
	limiter       *KeyLimiter
	logger        observability.Logger
	metrics       *Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithRealm sets the realm advertised in WWW-Authenticate.
func WithRealm(realm string) Option {
	return func(g *Gate) {
		if realm != "" {
			g.realm = realm
		}
	}
}

// WithAPIKeyHeader sets the header read when no Bearer token is present.
func WithAPIKeyHeader(header string) Option {
	return func(g *Gate) {
		if header != "" {
			g.apiKeyHeader = header
		}
	}
}

// WithPublicPaths replaces the set of paths that bypass authentication.
func WithPublicPaths(paths ...string) Option {
	return func(g *Gate) {
		g.publicPaths = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			g.publicPaths[p] = struct{}{}
		}
	}
}

// WithRateLimit enables per-key rate limiting after authentication.
func WithRateLimit(limiter *KeyLimiter) Option {
	return func(g *Gate) {
		g.limiter = limiter
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Gate) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// NewGate creates an authentication gate backed by authenticator.
func NewGate(authenticator Authenticator, opts ...Option) *Gate {
	g := &Gate{
		authenticator: authenticator,
		realm:         DefaultRealm,
		apiKeyHeader:  HeaderXAPIKey,
		logger:        observability.NopLogger(),
		metrics:       GetSharedMetrics(),
	}
	WithPublicPaths(DefaultPublicPaths...)(g)

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// IsPublic reports whether path bypasses the gate.
func (g *Gate) IsPublic(path string) bool {
	_, ok := g.publicPaths[path]
	return ok
}

// StatusFor maps a failure code to its HTTP status.
func StatusFor(code apikey.FailureCode) int {
	switch code {
	case apikey.CodeInvalid, apikey.CodeKeyExpired, apikey.CodeSecretExpired:
		return http.StatusUnauthorized
	case apikey.CodeTenantMissing:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

// Middleware returns the gin handler enforcing authentication.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.IsPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		res := g.authenticator.Authenticate(ExtractCredential(c.Request, g.apiKeyHeader))
		if !res.OK {
			g.reject(c, res, start)
			return
		}

		if g.limiter != nil && !g.limiter.Allow(res.KeyID) {
			g.logger.WithContext(c.Request.Context()).Warn("API key rate limited",
				observability.String("path", c.Request.URL.Path),
				observability.String("tenant_id", res.TenantID),
				observability.String("api_key_id", res.KeyID),
			)
			g.metrics.RecordOutcome(outcomeRateLimited, http.StatusTooManyRequests, time.Since(start))
			c.Header(HeaderRetryAfter, "1")
			apierror.Abort(c, http.StatusTooManyRequests, apierror.TooManyRequests, MessageRateLimited,
				map[string]any{"code": outcomeRateLimited})
			return
		}

		principal := &Principal{
			Tenant:   res.Tenant,
			Key:      res.Key,
			SecretID: res.SecretID,
			Digest:   res.Digest,
		}

		ctx := ContextWithPrincipal(c.Request.Context(), principal)
		ctx = observability.ContextWithPrincipal(ctx, res.TenantID, res.KeyID)
		c.Request = c.Request.WithContext(ctx)

		c.Set(ContextKeyPrincipal, principal)
		c.Set(ContextKeyTenantID, res.TenantID)
		c.Set(ContextKeyAPIKeyID, res.KeyID)
		c.Header(HeaderTenantID, res.TenantID)
		c.Header(HeaderAPIKeyID, res.KeyID)

		g.metrics.RecordOutcome(outcomeOK, http.StatusOK, time.Since(start))
		c.Next()
	}
}

func (g *Gate) reject(c *gin.Context, res apikey.Result, start time.Time) {
	status := StatusFor(res.Code)
	message := res.Message
	if status >= http.StatusInternalServerError {
		message = MessageMisconfigured
	}
	if message == "" {
		message = "Authentication failed"
	}

	g.logger.WithContext(c.Request.Context()).Warn("API authentication failed",
		observability.String("path", c.Request.URL.Path),
		observability.Int("status", status),
		observability.String("code", string(res.Code)),
		observability.String("tenant_id", res.TenantID),
		observability.String("api_key_id", res.KeyID),
		observability.String("secret_id", res.SecretID),
	)
	g.metrics.RecordOutcome(string(res.Code), status, time.Since(start))

	if status == http.StatusUnauthorized {
		c.Header(HeaderWWWAuthenticate, fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, g.realm))
	}

	apierror.Abort(c, status, apierror.NameForStatus(status), message,
		map[string]any{"code": string(res.Code)})
}

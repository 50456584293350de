package auth

import "regexp"

// HTTP header names used by the gate.
const (
	HeaderAuthorization   = "Authorization"
	HeaderWWWAuthenticate = "WWW-Authenticate"
	HeaderXAPIKey         = "X-Api-Key"
	HeaderTenantID        = "X-Tenant-Id"
	HeaderAPIKeyID        = "X-Api-Key-Id"
	HeaderRetryAfter      = "Retry-After"
)

// Defaults.
const (
	DefaultRealm = "sitegate-api"

	// MessageMisconfigured replaces the failure message on 500 responses.
	MessageMisconfigured = "Authentication subsystem misconfigured"

	// MessageRateLimited is returned with 429 responses.
	MessageRateLimited = "Rate limit exceeded for this API key"
)

// DefaultPublicPaths bypass the gate.
var DefaultPublicPaths = []string{"/healthz", "/readyz"}

// Gin context keys set on successful authentication.
const (
	ContextKeyPrincipal = "sitegate.principal"
	ContextKeyTenantID  = "sitegate.tenant_id"
	ContextKeyAPIKeyID  = "sitegate.api_key_id"
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

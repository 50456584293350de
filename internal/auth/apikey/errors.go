package apikey

import (
	"errors"
	"fmt"
)

// FailureCode classifies a rejected credential.
type FailureCode string

// Failure codes, in the order the policy chain checks them.
const (
	CodeInvalid           FailureCode = "invalid"
	CodeTenantMissing     FailureCode = "tenant_missing"
	CodeTenantInactive    FailureCode = "tenant_inactive"
	CodeKeyInactive       FailureCode = "api_key_inactive"
	CodeKeyExpired        FailureCode = "api_key_expired"
	CodeSecretInactive    FailureCode = "secret_inactive"
	CodeSecretNotYetValid FailureCode = "secret_not_yet_valid"
	CodeSecretExpired     FailureCode = "secret_expired"
)

// AllCodes lists every failure code.
var AllCodes = []FailureCode{
	CodeInvalid,
	CodeTenantMissing,
	CodeTenantInactive,
	CodeKeyInactive,
	CodeKeyExpired,
	CodeSecretInactive,
	CodeSecretNotYetValid,
	CodeSecretExpired,
}

// Human-readable failure messages.
const (
	msgMissing          = "API key missing"
	msgNotRecognised    = "API key not recognised"
	msgTenantMissing    = "Tenant is not configured for this API key"
	msgTenantInactive   = "Tenant is inactive"
	msgKeyInactive      = "API key is inactive"
	msgKeyExpired       = "API key has expired"
	msgSecretInactive   = "Secret version is inactive"
	msgSecretNotYet     = "Secret version is not yet valid"
	msgSecretExpiredMsg = "Secret version has expired"
)

// Load-time rejection reasons.
var (
	// ErrUnknownTenant is returned when a key references a tenant that is not registered.
	ErrUnknownTenant = errors.New("references unknown tenant")

	// ErrDuplicateKey is returned when a key id repeats an earlier one.
	ErrDuplicateKey = errors.New("duplicate API key id")

	// ErrNoRoles is returned when a key has an empty role set.
	ErrNoRoles = errors.New("must define at least one role")

	// ErrNoSecrets is returned when a key defines no secret versions.
	ErrNoSecrets = errors.New("must define at least one secret")

	// ErrNoActiveSecret is returned when no secret version of a key is active.
	ErrNoActiveSecret = errors.New("must have at least one active secret")

	// ErrMissingID is returned when a key has no id.
	ErrMissingID = errors.New("missing id")
)

// ConfigError reports an API key excluded from the registry at load time.
type ConfigError struct {
	KeyID string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("API key %s: %v", e.KeyID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/sitegate/internal/auth/apikey"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// ErrNoPrincipal is returned when a request carries no authenticated principal.
var ErrNoPrincipal = errors.New("no authenticated principal")

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Tenant   *tenant.Tenant
	Key      *apikey.Key
	SecretID string

	// Digest is the hex SHA-256 of the presented credential.
	Digest string
}

// TenantID returns the principal's tenant id.
func (p *Principal) TenantID() string {
	if p == nil || p.Tenant == nil {
		return ""
	}
	return p.Tenant.ID
}

// KeyID returns the principal's API key id.
func (p *Principal) KeyID() string {
	if p == nil || p.Key == nil {
		return ""
	}
	return p.Key.ID
}

type principalContextKey struct{}

// ContextWithPrincipal adds p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from ctx.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}

// PrincipalFromGin extracts the principal from a gin context.
func PrincipalFromGin(c *gin.Context) (*Principal, error) {
	if v, ok := c.Get(ContextKeyPrincipal); ok {
		if p, ok := v.(*Principal); ok && p != nil {
			return p, nil
		}
	}
	if p, ok := PrincipalFromContext(c.Request.Context()); ok {
		return p, nil
	}
	return nil, ErrNoPrincipal
}

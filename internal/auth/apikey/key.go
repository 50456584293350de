package apikey

import (
	"crypto/sha256"
	"maps"
	"slices"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// Key is the public view of a registered API key. It carries no secret
// material.
type Key struct {
	ID            string
	Name          string
	TenantID      string
	Roles         []string
	Active        bool
	ExpiresAt     *time.Time
	CreatedAt     *time.Time
	LastRotatedAt *time.Time
	Metadata      map[string]string
}

// HasRole reports whether the key was granted role.
func (k *Key) HasRole(role string) bool {
	for _, r := range k.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// clone returns a deep copy of k that shares no memory with the registry.
func (k Key) clone() Key {
	k.Roles = slices.Clone(k.Roles)
	k.Metadata = maps.Clone(k.Metadata)
	k.ExpiresAt = cloneTime(k.ExpiresAt)
	k.CreatedAt = cloneTime(k.CreatedAt)
	k.LastRotatedAt = cloneTime(k.LastRotatedAt)
	return k
}

// Secret is the public view of one secret version.
type Secret struct {
	ID        string
	Active    bool
	NotBefore *time.Time
	ExpiresAt *time.Time
}

func (s Secret) clone() Secret {
	s.NotBefore = cloneTime(s.NotBefore)
	s.ExpiresAt = cloneTime(s.ExpiresAt)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type secretEntry struct {
	view   Secret
	digest [sha256.Size]byte
}

type keyEntry struct {
	view    Key
	secrets []secretEntry
}

// Result is the outcome of Authenticate. When OK is false, Code and Message
// describe the failure and the ids identify what matched, for logging only.
type Result struct {
	OK bool

	Tenant *tenant.Tenant
	Key    *Key
	Secret *Secret

	// Digest is the hex SHA-256 of the presented credential.
	Digest string

	Code     FailureCode
	Message  string
	TenantID string
	KeyID    string
	SecretID string
}

func failure(code FailureCode, message string) Result {
	return Result{Code: code, Message: message}
}

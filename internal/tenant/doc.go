// Package tenant holds the immutable tenant table built from configuration.
//
// Each tenant's collaboration-site settings are normalized once at load
// time: a tenant-specific value wins, then the global default, and for the
// site display name only, finally the tenant's own name. The registry is
// never mutated after construction and is safe for concurrent reads
// without locking.
package tenant

// Package provision manages tenant collaboration sites through Microsoft
// Graph and SharePoint REST.
//
// Every operation is idempotent: existing sites, libraries and groups are
// discovered by display name and reused. Calls are not retried here; the
// Graph client decides whether a failure is recoverable.
package provision

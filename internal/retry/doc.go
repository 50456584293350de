// Package retry runs short operations with bounded exponential backoff.
//
// It is used for idempotent distributed-cache operations. Calls to the
// identity provider and to Microsoft Graph are deliberately not retried here:
// the token supplier has its own failure accounting and fallback.
package retry

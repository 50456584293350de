// Package apikey provides the API key registry and the authentication
// decision for presented credentials.
//
// Keys are loaded once from configuration. Every secret version is resolved
// through the secrets package, digested with SHA-256, and the plaintext
// buffer is wiped; only the digest, validity window and active flag are
// kept. Loading is partial-tolerant: a key that references an unknown
// tenant, repeats an id, has no roles, has an unresolvable secret, or has
// no active secret version is logged and skipped without affecting other
// keys.
//
// Authenticate compares the candidate digest against every stored digest in
// constant time, scanning the whole registry regardless of where a match
// occurs. The first match in registration order then runs an ordered,
// fail-fast policy chain:
//
//	tenant exists -> tenant active -> key active -> key not expired ->
//	secret active -> secret notBefore reached -> secret not expired
//
// The registry is immutable after construction and safe for concurrent use.
package apikey

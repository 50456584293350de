// Package oauth supplies identity-provider access tokens obtained with the
// OAuth 2.0 client-credentials grant.
//
// The Supplier keeps tokens in two tiers: a process-local slot and an
// optional distributed cache shared between instances. A token is fresh
// while now < expiresAt - refreshBuffer. Lookups go local, then
// distributed, then to the token endpoint; at most one acquisition runs per
// process at a time and concurrent callers share its result.
//
// Repeated acquisition failures are counted. After a configurable number of
// consecutive failures the supplier escalates its logging, and after a
// further threshold it enters a sticky fallback mode in which the last
// known token is served for a bounded window past its expiry. The first
// successful acquisition resets the counter and leaves fallback mode.
package oauth

// Package cache provides the distributed key/value cache used to share
// identity-provider tokens between sitegate instances.
//
// Two implementations exist behind the Cache interface:
//
//   - a Redis cache (go-redis) with bounded retries, tracing spans and
//     Prometheus metrics
//   - a disabled cache for single-instance deployments, whose operations
//     all report ErrCacheDisabled
//
// Callers treat every error, including ErrCacheMiss and ErrCacheDisabled,
// as a miss; the cache is never on the correctness path.
package cache

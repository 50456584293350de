// Package health provides the liveness and readiness probe endpoints.
//
// Liveness (/healthz) reports that the process is up along with its
// version, uptime and environment. Readiness (/readyz) runs every
// registered dependency check concurrently and answers 503 when any of
// them fails. A check that does not apply to the current configuration
// returns ErrSkipped and is reported as skipped rather than failed.
//
// # Usage
//
//	h := health.NewHandler(health.Info{Version: version, Environment: env}, logger)
//	h.AddCheck(health.GraphCheck(supplier, graphClient))
//	h.AddCheck(health.RedisCheck(cache))
//	h.RegisterRoutes(engine)
package health

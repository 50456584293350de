package health

// Per-check statuses.
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusSkipped = "skipped"
)

// Overall statuses.
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusDegraded = "degraded"
)

// Check names.
const (
	CheckGraph      = "graph"
	CheckSharePoint = "sharepoint"
	CheckRedis      = "redis"
)

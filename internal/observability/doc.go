// Package observability provides structured logging and tracing helpers
// for sitegate.
//
// Logging is built on zap and exposed through the Logger interface so that
// packages never depend on zap directly:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("api key registry loaded",
//	    observability.Int("keys", 3),
//	)
//
// Request-scoped values (request id, tenant id, api key id) stored with the
// ContextWith* helpers are added to log entries by Logger.WithContext.
//
// Tracing uses the OpenTelemetry API only. Spans are no-ops unless the host
// process installs a tracer provider.
package observability

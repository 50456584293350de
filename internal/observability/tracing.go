package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerPrefix is prepended to every instrumentation scope name.
const TracerPrefix = "sitegate/"

// Tracer returns the OpenTelemetry tracer for the named component.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(TracerPrefix + component)
}

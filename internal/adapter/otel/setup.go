// Package otel provides a stub for OpenTelemetry tracing setup.
// Instruments record against the global provider; until an exporter is
// configured they are no-ops with zero overhead.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Wiring an OTLP exporter and
// TracerProvider is deferred until a collector exists to receive them.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel stub: InitTracer called", "service", serviceName)
	return func(_ context.Context) error {
		slog.Info("otel stub: shutdown called")
		return nil
	}
}

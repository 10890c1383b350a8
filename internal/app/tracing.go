package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

// initTracing installs a tracer provider with a stdout exporter. Returns a
// shutdown func; tracing failures never block startup.
func initTracing(log *logger.Logger) func(context.Context) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Warn("Tracing disabled", "error", err)
		return func(context.Context) {}
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			log.Warn("Tracer shutdown failed", "error", err)
		}
	}
}

// Package otelx initializes tracing for the gateway process. It mirrors the
// teacher's observability.InitOTel, simplified to the stdout exporter: there
// is no external collector in this system's deployment story, only a trace
// id propagated through logs and response headers.
package otelx

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/devenwen/callme-gate/internal/platform/logger"
)

var (
	initOnce     sync.Once
	shutdownFunc func(context.Context) error
)

// Init sets up the global tracer provider if enabled is true, and returns a
// shutdown func to call at process exit. When enabled is false it returns a
// no-op shutdown func so callers never need to branch on it.
func Init(ctx context.Context, log *logger.Logger, serviceName string, enabled bool) func(context.Context) error {
	initOnce.Do(func() {
		if !enabled {
			shutdownFunc = func(context.Context) error { return nil }
			return
		}
		if strings.TrimSpace(serviceName) == "" {
			serviceName = "callme-gate"
		}

		res, err := resource.New(ctx, resource.WithAttributes(
			attribute.String("service.name", serviceName),
		))
		if err != nil && log != nil {
			log.Warn("otelx: resource init failed, continuing without attributes", "error", err)
		}

		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			if log != nil {
				log.Warn("otelx: stdout exporter init failed, tracing disabled", "error", err)
			}
			shutdownFunc = func(context.Context) error { return nil }
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdownFunc = tp.Shutdown
		if log != nil {
			log.Info("otelx: stdout tracing initialized", "service", serviceName)
		}
	})
	return shutdownFunc
}

package telemetry

import (
	"context"
	"fmt"

	"github.com/dgellow/restaurant-reviews/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options select where spans are exported
type Options struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	// AppInsights is true when an Application Insights connection string
	// is configured.
	AppInsights bool
}

// ShutdownFunc flushes pending spans and stops the exporter
type ShutdownFunc func(context.Context) error

// Setup installs the global tracer provider and W3C trace context
// propagation.
//
// Tracing is opt-in: without an OTLP endpoint, or with Enabled false, Setup
// registers nothing and returns a no-op shutdown.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	if !opts.Enabled {
		return noop, nil
	}
	if opts.OTLPEndpoint == "" {
		if opts.AppInsights {
			log.LogWarnWithFields("telemetry", "Application Insights connection string set without an OTLP endpoint, tracing is off", map[string]any{
				"hint": "point OTEL_EXPORTER_OTLP_ENDPOINT at a collector that forwards to Azure Monitor",
			})
		}
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.OTLPEndpoint))
	if err != nil {
		return noop, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return noop, fmt.Errorf("building telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.LogInfoWithFields("telemetry", "Tracing enabled", map[string]any{
		"endpoint": opts.OTLPEndpoint,
		"service":  opts.ServiceName,
	})
	return tp.Shutdown, nil
}

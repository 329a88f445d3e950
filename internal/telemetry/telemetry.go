package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is used when Config.ServiceName is empty.
const DefaultServiceName = "wasm-instrument"

// Config holds OpenTelemetry configuration
type Config struct {
	// Exporter replaces the OTLP HTTP exporter when set.
	Exporter       trace.SpanExporter
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Enabled        bool
}

// Init installs a global tracer provider. The returned function flushes and
// shuts it down. When tracing is disabled both are no-ops.
func Init(ctx context.Context, cfg Config) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	exporter := cfg.Exporter
	if exporter == nil {
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		var err error
		exporter, err = otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) oteltrace.Tracer {
	return otel.Tracer(name)
}

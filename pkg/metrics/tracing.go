package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// serviceResource tags telemetry with the service name. The attribute is
// schemaless so it merges with whatever schema the SDK defaults carry.
func serviceResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	return res, nil
}

// SetupTracing installs a global tracer provider exporting to stdout.
// The returned func flushes and stops it.
func SetupTracing(serviceName string) (func(context.Context) error, error) {
	res, err := serviceResource(serviceName)
	if err != nil {
		return nil, err
	}
	exp, err := stdouttrace.New()
	if err != nil {
		return nil, fmt.Errorf("stdouttrace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// SetupMeterProvider bridges OpenTelemetry instruments into the default
// Prometheus registry, so they appear on the same /metrics endpoint.
// Call it once per process.
func SetupMeterProvider(serviceName string) (func(context.Context) error, error) {
	res, err := serviceResource(serviceName)
	if err != nil {
		return nil, err
	}
	exp, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exp),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

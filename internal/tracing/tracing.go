// Package tracing builds the OpenTelemetry tracer provider used for engine
// command spans and HTTP request spans.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "formflow"

// Provider wraps a tracer provider with its shutdown hook.
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans. It is a no-op for a disabled provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Disabled returns a provider whose spans are dropped.
func Disabled() *Provider {
	return &Provider{TracerProvider: noop.NewTracerProvider()}
}

// NewStdout returns a provider exporting finished spans as JSON to w.
func NewStdout(version string, w io.Writer) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	return NewWithExporter(version, exporter)
}

// NewWithExporter returns a provider sending spans to exporter synchronously.
func NewWithExporter(version string, exporter sdktrace.SpanExporter) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}

// Setup returns the stdout provider when enabled and a disabled one
// otherwise.
func Setup(enabled bool, version string, w io.Writer) (*Provider, error) {
	if !enabled {
		return Disabled(), nil
	}
	return NewStdout(version, w)
}

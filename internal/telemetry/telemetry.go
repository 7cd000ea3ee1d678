// Package telemetry configures the process-wide OpenTelemetry tracer
// provider. With the "none" exporter every span is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const ServiceName = "anyclaw"

// Span attribute keys shared by the orchestrator and HTTP layer.
var (
	AttrGatewayID = attribute.Key("anyclaw.gateway.id")
	AttrAgentID   = attribute.Key("anyclaw.agent.id")
	AttrUserID    = attribute.Key("anyclaw.user.id")
	AttrProfile   = attribute.Key("anyclaw.profile")
	AttrPort      = attribute.Key("anyclaw.port")
)

type Config struct {
	Exporter string // none, stdout or otlp
	Endpoint string
	Version  string
	// Writer receives stdout-exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

// Provider owns the tracer provider installed by Init.
type Provider struct {
	shutdown func(context.Context) error
}

// Init installs a global tracer provider for cfg.Exporter.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return &Provider{shutdown: func(context.Context) error { return nil }}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{shutdown: tp.Shutdown}, nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "stdout":
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		return stdouttrace.New(opts...)
	default:
		return nil, fmt.Errorf("unknown exporter %q (supported: none, stdout, otlp)", cfg.Exporter)
	}
}

// Tracer returns a tracer from the global provider, so packages pick up
// whatever Init installed even if they were constructed first.
func Tracer(scope string) trace.Tracer {
	return otel.Tracer(scope)
}

// Start opens an internal span with attrs.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

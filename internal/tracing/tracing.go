// Package tracing configures the OpenTelemetry tracer used for year and phase spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterFile   = "file"
)

const defaultServiceName = "microsim"

// Config selects where spans go.
type Config struct {
	// Exporter is one of "none", "stdout" or "file". "none" (or empty) yields a
	// no-op tracer.
	Exporter string `mapstructure:"exporter"`

	// FilePath is the JSONL output of the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// SampleRate is the fraction of traces kept. Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this process in traces. Default: "microsim"
	ServiceName string `mapstructure:"service_name"`
}

// Provider wraps the SDK tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewProvider creates the tracer for cfg.
func NewProvider(cfg Config) (*Provider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case ExporterNone, "":
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	case ExporterFile:
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path required for file exporter")
		}
		exporter, err = NewFileExporter(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("create file exporter: %w", err)
		}
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return &Provider{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// Tracer returns the tracer to hand to the scheduler. Never nil.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes pending spans. Call it before the process exits.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

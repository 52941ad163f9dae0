package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/petal-labs/vendwatch"

// Config configures the telemetry providers.
type Config struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string

	// OTLPEndpoint is an OTLP/HTTP traces URL such as
	// http://localhost:4318/v1/traces. Tracing is disabled when empty.
	OTLPEndpoint string
}

// Providers bundles the meter and tracer providers for one process run.
// Metrics are collected on demand through a manual reader.
type Providers struct {
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	tracerProvider trace.TracerProvider
	shutdownTrace  func(context.Context) error
}

// Setup creates the providers described by cfg.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vendwatch"
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	reader := sdkmetric.NewManualReader()
	p := &Providers{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		),
		reader:         reader,
		tracerProvider: noop.NewTracerProvider(),
		shutdownTrace:  func(context.Context) error { return nil },
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			_ = p.meterProvider.Shutdown(ctx)
			return nil, fmt.Errorf("otel: create otlp exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		p.tracerProvider = tp
		p.shutdownTrace = tp.Shutdown
	}

	return p, nil
}

// Meter returns the vendwatch meter.
func (p *Providers) Meter() metric.Meter {
	return p.meterProvider.Meter(instrumentationName)
}

// Tracer returns the vendwatch tracer.
func (p *Providers) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(instrumentationName)
}

// TracingEnabled reports whether spans are exported.
func (p *Providers) TracingEnabled() bool {
	_, ok := p.tracerProvider.(*sdktrace.TracerProvider)
	return ok
}

// CollectCounters reads every int64 sum metric and returns its total across
// all attribute sets, keyed by metric name.
func (p *Providers) CollectCounters(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("otel: collect metrics: %w", err)
	}

	totals := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			totals[m.Name] = total
		}
	}
	return totals, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.shutdownTrace(ctx),
		p.meterProvider.Shutdown(ctx),
	)
}

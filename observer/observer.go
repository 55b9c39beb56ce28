// Package observer provides OTEL-based observability for roundtable
// discussions.
//
// It wraps Adapter implementations with instrumented versions that emit
// traces and metrics via OpenTelemetry. Users export to any
// OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/jwkim/roundtable/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	SendRequests metric.Int64Counter
	StreamChunks metric.Int64Counter
	TokensOut    metric.Int64Counter
	Discussions  metric.Int64Counter

	// Histograms
	SendDuration       metric.Float64Histogram
	DiscussionDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that
// must be called on application exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "roundtable"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	sendRequests, err := meter.Int64Counter("assistant.requests",
		metric.WithDescription("Assistant turn count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	streamChunks, err := meter.Int64Counter("assistant.stream_chunks",
		metric.WithDescription("Streamed chunk count"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}

	tokensOut, err := meter.Int64Counter("assistant.tokens",
		metric.WithDescription("Estimated tokens produced"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	discussions, err := meter.Int64Counter("discussion.count",
		metric.WithDescription("Discussion count"),
		metric.WithUnit("{discussion}"))
	if err != nil {
		return nil, err
	}

	sendDuration, err := meter.Float64Histogram("assistant.duration",
		metric.WithDescription("Assistant turn duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	discussionDuration, err := meter.Float64Histogram("discussion.duration",
		metric.WithDescription("End-to-end discussion duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:             tracer,
		Meter:              meter,
		SendRequests:       sendRequests,
		StreamChunks:       streamChunks,
		TokensOut:          tokensOut,
		Discussions:        discussions,
		SendDuration:       sendDuration,
		DiscussionDuration: discussionDuration,
	}, nil
}

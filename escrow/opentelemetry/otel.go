package opentelemetry

import (
	"context"
	"strings"
	"unicode/utf8"

	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TelemetryConfig configures telemetry for an escrow service.
type TelemetryConfig struct {
	LibraryName     string
	EnableTelemetry bool
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider
	Logger          log.Logger
}

// Telemetry bundles the tracer and metrics factory handed to escrow components.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Metrics        *metrics.MetricsFactory
}

// NewTelemetry builds a Telemetry from cfg. Disabled telemetry, or missing
// providers, resolve to OpenTelemetry no-op implementations.
func NewTelemetry(cfg TelemetryConfig) (*Telemetry, error) {
	name := cfg.LibraryName
	if name == "" {
		name = constant.TelemetrySDKName
	}

	tp := cfg.TracerProvider
	mp := cfg.MeterProvider

	if !cfg.EnableTelemetry || tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	if !cfg.EnableTelemetry || mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	factory, err := metrics.NewMetricsFactory(mp.Meter(name), cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Tracer:         tp.Tracer(name),
		Metrics:        factory,
	}, nil
}

// NewNopTelemetry returns telemetry that records nothing.
func NewNopTelemetry() *Telemetry {
	tp := tracenoop.NewTracerProvider()

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  metricnoop.NewMeterProvider(),
		Tracer:         tp.Tracer(constant.TelemetrySDKName),
		Metrics:        metrics.NewNopFactory(),
	}
}

// HandleSpanBusinessErrorEvent records a business rejection as a span event
// without marking the span as failed.
func HandleSpanBusinessErrorEvent(span trace.Span, eventName string, err error) {
	if span != nil && err != nil {
		span.AddEvent(eventName, trace.WithAttributes(attribute.String("error", sanitizeUTF8String(err.Error()))))
	}
}

// HandleSpanEvent adds an event to the span.
func HandleSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	if span != nil {
		span.AddEvent(eventName, trace.WithAttributes(attributes...))
	}
}

// HandleSpanError sets the status of the span to error and records the error.
func HandleSpanError(span trace.Span, message string, err error) {
	if span != nil && err != nil {
		span.SetStatus(codes.Error, message+": "+sanitizeUTF8String(err.Error()))
		span.RecordError(err)
	}
}

// GetTraceIDFromContext extracts the trace ID from the current span context.
// Returns empty string if no valid span is active.
func GetTraceIDFromContext(ctx context.Context) string {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return ""
	}

	return spanContext.TraceID().String()
}

func sanitizeUTF8String(s string) string {
	if !utf8.ValidString(s) {
		return strings.ToValidUTF8(s, "�")
	}

	return s
}

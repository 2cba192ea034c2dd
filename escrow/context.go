package escrow

import (
	"context"
	"strings"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow/assert"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ---- Context container ----

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("escrow_context")

// CustomContextKeyValue holds the tracking facilities attached to a context.
type CustomContextKeyValue struct {
	CorrelationID string
	Tracer        trace.Tracer
	Logger        log.Logger
	MetricFactory *metrics.MetricsFactory
}

func valuesFrom(ctx context.Context) *CustomContextKeyValue {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		return &CustomContextKeyValue{}
	}

	clone := *values

	return &clone
}

// ---- Setters ----

// ContextWithLogger returns a context carrying logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := valuesFrom(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithTracer returns a context carrying tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := valuesFrom(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithMetricFactory returns a context carrying the metrics factory.
func ContextWithMetricFactory(ctx context.Context, metricFactory *metrics.MetricsFactory) context.Context {
	values := valuesFrom(ctx)
	values.MetricFactory = metricFactory

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithCorrelationID returns a context carrying a correlation id, used to
// tie the seats of one bridged offer together in logs.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	values := valuesFrom(ctx)
	values.CorrelationID = correlationID

	return context.WithValue(ctx, CustomContextKey, values)
}

// NewLoggerFromContext returns the context logger or a NopLogger.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values.Logger != nil {
		return values.Logger
	}

	return log.NewNop()
}

// ---- Tracking bundle ----

// TrackingComponents is the full set of tracking components extracted from a context.
type TrackingComponents struct {
	Logger        log.Logger
	Tracer        trace.Tracer
	CorrelationID string
	MetricFactory *metrics.MetricsFactory
}

// NewTrackingFromContext extracts tracking components from ctx. Missing
// components resolve to working defaults, never nil.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string, *metrics.MetricsFactory) {
	c := extractTrackingComponents(ctx)

	return c.Logger, c.Tracer, c.CorrelationID, c.MetricFactory
}

func extractTrackingComponents(ctx context.Context) TrackingComponents {
	values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if !ok || values == nil {
		values = &CustomContextKeyValue{}
	}

	return TrackingComponents{
		Logger:        log.OrNop(values.Logger),
		Tracer:        resolveTracer(values.Tracer),
		CorrelationID: resolveCorrelationID(values.CorrelationID),
		MetricFactory: resolveMetricFactory(values.MetricFactory),
	}
}

func resolveTracer(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}

	return otel.Tracer("escrow.default")
}

func resolveCorrelationID(id string) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}

	return uuid.NewString()
}

// resolveMetricFactory never returns nil; a factory that cannot be built from
// the global provider degrades to the no-op factory.
func resolveMetricFactory(factory *metrics.MetricsFactory) *metrics.MetricsFactory {
	if factory != nil {
		return factory
	}

	defaultFactory, err := metrics.NewMetricsFactory(otel.GetMeterProvider().Meter("escrow.default"), log.NewNop())
	if err != nil {
		asserter := assert.New(context.Background(), nil, "escrow", "resolveMetricFactory")
		_ = asserter.Never(context.Background(), "failed to create default MetricsFactory: "+err.Error())

		return metrics.NewNopFactory()
	}

	return defaultFactory
}

// ---- Deadline management ----

// WithTimeoutSafe creates a context with the given timeout, keeping any
// shorter deadline already present on parent.
func WithTimeoutSafe(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		return nil, nil, ErrNilParentContext
	}

	if deadline, ok := parent.Deadline(); ok && time.Until(deadline) < timeout {
		ctx, cancel := context.WithCancel(parent)

		return ctx, cancel, nil
	}

	ctx, cancel := context.WithTimeout(parent, timeout)

	return ctx, cancel, nil
}

package assert

import (
	"context"
	"fmt"
	"strings"

	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AssertionSpanEventName is the span event recorded for failed assertions.
const AssertionSpanEventName = constant.EventAssertionFailed

var assertionFailedMetric = metrics.Metric{
	Name:        constant.MetricAssertionFailedTotal,
	Unit:        "1",
	Description: "Total number of failed assertions",
}

func countFailure(ctx context.Context, factory *metrics.MetricsFactory, component, operation, assertion string) {
	if factory == nil {
		return
	}

	counter, err := factory.Counter(assertionFailedMetric)
	if err == nil {
		err = counter.WithAttributes(
			attribute.String("component", constant.SanitizeMetricLabel(component)),
			attribute.String("operation", constant.SanitizeMetricLabel(operation)),
			attribute.String("assertion", constant.SanitizeMetricLabel(assertion)),
		).AddOne(ctx)
	}

	if err != nil {
		report(ctx, nil, "failed to record assertion metric: "+err.Error())
	}
}

func markSpan(ctx context.Context, assertion, message string, stack []byte, component, operation string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(constant.AttrPrefixAssert+"name", assertion),
		attribute.String(constant.AttrPrefixAssert+"message", message),
		attribute.String(constant.AttrPrefixAssert+"component", component),
		attribute.String(constant.AttrPrefixAssert+"operation", operation),
	}

	if len(stack) > 0 {
		attrs = append(attrs, attribute.String(constant.AttrPrefixAssert+"stack", string(stack)))
	}

	span.AddEvent(AssertionSpanEventName, trace.WithAttributes(attrs...))
	span.RecordError(fmt.Errorf("%w: %s", ErrAssertionFailed, message))

	where := "assertion failed"
	if component != "" || operation != "" {
		where += " in " + strings.Trim(component+"/"+operation, "/")
	}

	span.SetStatus(codes.Error, where)
}

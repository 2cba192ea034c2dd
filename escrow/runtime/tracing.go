package runtime

import (
	"context"
	"fmt"

	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PanicSpanEventName is the span event recorded for recovered panics.
const PanicSpanEventName = constant.EventPanicRecovered

// RecordPanicToSpan records a recovered panic on the span active in ctx.
func RecordPanicToSpan(ctx context.Context, value any, stack []byte, name string) {
	RecordPanicToSpanWithComponent(ctx, value, stack, "", name)
}

// RecordPanicToSpanWithComponent records a recovered panic with a component label.
func RecordPanicToSpanWithComponent(ctx context.Context, value any, stack []byte, component, name string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	valueStr := formatPanicValue(value)
	stackStr := string(stack)

	if IsProductionMode() {
		valueStr = redactedPanicMsg
		stackStr = ""
	}

	attrs := []attribute.KeyValue{
		attribute.String(constant.AttrPrefixPanic+"value", valueStr),
		attribute.String(constant.AttrPrefixPanic+"goroutine_name", name),
	}

	if stackStr != "" {
		attrs = append(attrs, attribute.String(constant.AttrPrefixPanic+"stack", stackStr))
	}

	if component != "" {
		attrs = append(attrs, attribute.String(constant.AttrPrefixPanic+"component", component))
	}

	span.AddEvent(PanicSpanEventName, trace.WithAttributes(attrs...))
	span.RecordError(fmt.Errorf("panic: %s", valueStr))
	span.SetStatus(codes.Error, "panic recovered in "+name)
}

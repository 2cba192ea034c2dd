package metrics

import (
	"context"

	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// MetricStagingsCreated counts stagings accepted by the offer-safety gate.
	MetricStagingsCreated = Metric{
		Name:        constant.MetricStagingsCreated,
		Unit:        "1",
		Description: "Number of seat stagings created.",
	}

	// MetricReallocationsCommitted counts atomically committed reallocation batches.
	MetricReallocationsCommitted = Metric{
		Name:        constant.MetricReallocationsCommitted,
		Unit:        "1",
		Description: "Number of reallocation batches committed.",
	}

	// MetricReallocationsRejected counts rejected reallocation batches by reason.
	MetricReallocationsRejected = Metric{
		Name:        constant.MetricReallocationsRejected,
		Unit:        "1",
		Description: "Number of reallocation batches rejected.",
	}

	// MetricSeatsExited counts seats leaving the engine by outcome.
	MetricSeatsExited = Metric{
		Name:        constant.MetricSeatsExited,
		Unit:        "1",
		Description: "Number of seats exited, by outcome.",
	}

	// MetricBridgesSettled counts offer bridges reaching a terminal state.
	MetricBridgesSettled = Metric{
		Name:        constant.MetricBridgesSettled,
		Unit:        "1",
		Description: "Number of bridged offers settled, by outcome.",
	}

	// MetricPayoutLatency measures escrow payout duration in milliseconds.
	MetricPayoutLatency = Metric{
		Name:        constant.MetricPayoutLatency,
		Unit:        "ms",
		Description: "Duration of escrow payouts at seat exit.",
	}
)

// RecordStagingCreated increments the staging counter.
func (f *MetricsFactory) RecordStagingCreated(ctx context.Context, instanceID string) error {
	b, err := f.Counter(MetricStagingsCreated)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String(constant.AttrInstanceID, instanceID)).AddOne(ctx)
}

// RecordReallocation increments the committed counter, or the rejected
// counter labelled with reason when reason is not empty.
func (f *MetricsFactory) RecordReallocation(ctx context.Context, instanceID, reason string) error {
	if reason == "" {
		b, err := f.Counter(MetricReallocationsCommitted)
		if err != nil {
			return err
		}

		return b.WithAttributes(attribute.String(constant.AttrInstanceID, instanceID)).AddOne(ctx)
	}

	b, err := f.Counter(MetricReallocationsRejected)
	if err != nil {
		return err
	}

	return b.WithAttributes(
		attribute.String(constant.AttrInstanceID, instanceID),
		attribute.String(constant.AttrRejectReason, constant.SanitizeMetricLabel(reason)),
	).AddOne(ctx)
}

// RecordSeatExited increments the exit counter for outcome ("exited" or "failed").
func (f *MetricsFactory) RecordSeatExited(ctx context.Context, instanceID, outcome string) error {
	b, err := f.Counter(MetricSeatsExited)
	if err != nil {
		return err
	}

	return b.WithAttributes(
		attribute.String(constant.AttrInstanceID, instanceID),
		attribute.String(constant.AttrOutcome, outcome),
	).AddOne(ctx)
}

// RecordBridgeSettled increments the bridge counter for outcome.
func (f *MetricsFactory) RecordBridgeSettled(ctx context.Context, outcome string) error {
	b, err := f.Counter(MetricBridgesSettled)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String(constant.AttrOutcome, outcome)).AddOne(ctx)
}

// RecordPayoutLatency records how long a seat payout took.
func (f *MetricsFactory) RecordPayoutLatency(ctx context.Context, millis int64) error {
	b, err := f.Histogram(MetricPayoutLatency)
	if err != nil {
		return err
	}

	return b.Record(ctx, millis)
}

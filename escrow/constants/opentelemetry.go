package constant

// TelemetrySDKName identifies this library in OTEL telemetry resource attributes.
const TelemetrySDKName = "lib-escrow"

// MaxMetricLabelLength bounds metric label values to avoid cardinality explosion.
const MaxMetricLabelLength = 64

// Telemetry attribute keys.
const (
	AttrInstanceID   = "escrow.instance_id"
	AttrSeatHandle   = "escrow.seat"
	AttrStagingCount = "escrow.stagings"
	AttrBrand        = "escrow.brand"
	AttrKeyword      = "escrow.keyword"
	AttrInvitation   = "escrow.invitation"
	AttrOutcome      = "escrow.outcome"
	AttrRejectReason = "escrow.reject_reason"
	AttrPrefixAssert = "assertion."
	AttrPrefixPanic  = "panic."
)

// Telemetry metric names.
const (
	MetricStagingsCreated        = "stagings_created"
	MetricReallocationsCommitted = "reallocations_committed"
	MetricReallocationsRejected  = "reallocations_rejected"
	MetricSeatsExited            = "seats_exited"
	MetricBridgesSettled         = "bridges_settled"
	MetricPayoutLatency          = "payout_latency_ms"
	MetricPanicRecoveredTotal    = "panic_recovered_total"
	MetricAssertionFailedTotal   = "assertion_failed_total"
)

// Telemetry event names.
const (
	EventAssertionFailed    = "assertion.failed"
	EventPanicRecovered     = "panic.recovered"
	EventStagingRejected    = "staging.rejected"
	EventReallocationFailed = "reallocation.failed"
	EventBridgeFailed       = "bridge.failed"
)

// SanitizeMetricLabel truncates a label value to MaxMetricLabelLength.
func SanitizeMetricLabel(value string) string {
	if len(value) > MaxMetricLabelLength {
		return value[:MaxMetricLabelLength]
	}

	return value
}

// Package zap bridges the escrow log.Logger abstraction to go.uber.org/zap.
//
// Entries logged with a context carrying an active OpenTelemetry span are
// tagged with trace_id and span_id so seat and reallocation logs correlate
// with distributed traces.
package zap

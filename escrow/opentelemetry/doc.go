// Package opentelemetry wires tracing and metrics for the escrow engine.
//
// NewTelemetry accepts caller-owned providers and falls back to no-op providers
// when telemetry is disabled, so components can always trace and record
// without nil checks. Span helpers attach escrow failures to the active span.
package opentelemetry

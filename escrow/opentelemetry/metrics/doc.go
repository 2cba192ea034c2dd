// Package metrics provides a lazily-initialized OpenTelemetry metrics factory
// and the escrow domain recorders built on it.
package metrics

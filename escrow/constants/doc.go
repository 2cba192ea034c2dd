// Package constant holds the shared names used by escrow telemetry: metric
// names, span event names and attribute keys.
package constant

// Package log defines the logging interface used across lib-escrow and its
// typed logging fields.
//
// Adapters (such as the zap package) implement Logger so engine components can
// log consistently regardless of backend. Components that receive no logger
// fall back to NewNop.
package log

// Package circuitbreaker guards escrow purse backends with sony/gobreaker.
//
// One breaker exists per named backend (typically one per brand purse). When a
// backend keeps failing, deposits and withdrawals fast-fail with
// ErrServiceUnavailable instead of stalling offer redemption and payouts.
package circuitbreaker

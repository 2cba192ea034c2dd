// Package assert checks engine invariants at runtime without panicking.
//
// A failed assertion logs the violation, records an assertion.failed event on
// the active span, increments assertion_failed_total and returns an
// *AssertionError that matches ErrAssertionFailed. The counter is only
// recorded when the asserter was given a factory with WithMetrics. The seat
// coordinator uses it to check that every committed seat is still live.
package assert

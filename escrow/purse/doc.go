// Package purse defines the escrow purse contract used to hold deposited
// assets while seats are live, with an in-memory implementation and a
// resilience wrapper that adds retries and a circuit breaker around any
// purse backend.
package purse

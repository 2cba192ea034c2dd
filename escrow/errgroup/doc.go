// Package errgroup runs a bounded set of goroutines that share a cancellation
// context, converting panics into errors. The service layer uses it to
// withdraw a seat's payouts concurrently, one goroutine per keyword.
package errgroup

// Package future provides single-assignment results for asynchronous escrow
// operations such as offer redemption, payouts and bridged offers.
//
// A Future is resolved or rejected exactly once through its Kit. Callers wait
// with Await or attach continuations with Then; neither ever polls.
package future

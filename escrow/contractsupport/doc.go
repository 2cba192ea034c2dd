// Package contractsupport holds helpers contracts build on: two-seat trades
// and swaps expressed as stagings plus one reallocation, proposal shape
// checks, keyword remapping, escrow deposits and withdrawals on seats,
// floor percentages, a transition-table state machine, and OfferTo, which
// bridges a seat's assets into an offer on another instance.
package contractsupport

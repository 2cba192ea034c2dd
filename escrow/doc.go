// Package escrow holds the shared error model and context tracking helpers of
// the escrow engine.
//
// Every engine failure is a DomainError with a stable numeric code. Callers
// match kinds with errors.Is against the exported sentinels:
//
//	if errors.Is(err, escrow.ErrSeatExited) { ... }
//
// The engine itself lives in the subpackages: amount and offer hold the pure
// value model, seat holds seats, stagings and the reallocation coordinator,
// service hosts instances and escrow purses, and contractsupport provides
// the trade, swap and offer-bridging helpers contracts are written with.
package escrow

// Package seat implements participant seats and the reallocation coordinator.
//
// A seat is one record behind two facets: Seat, handed to contract code, and
// Admin, kept by the service layer. Allocations change only through stagings:
// Seat.Stage drafts an allocation that passes offer safety, and
// Instance.Reallocate commits a batch of stagings atomically when every
// brand's total is conserved across the participating seats.
//
// All mutating operations of one Instance are serialized by a single lock
// and never block on external work. Settlement hooks and observers run
// outside that lock.
package seat

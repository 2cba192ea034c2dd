// Package service hosts contract instances over a shared escrow pool.
//
// A Service keeps one pooled purse per registered brand. StartInstance runs
// a contract against a Facet that can mint invitations, create seats and
// reallocate between them. Offer redeems an invitation: the given payments
// are deposited into the pool, a seat is created with them as its initial
// allocation, and the invitation's handler runs against that seat. When the
// seat exits or fails its allocation is withdrawn from the pool and paid out
// on the UserSeat.
package service

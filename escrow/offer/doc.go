// Package offer defines proposals and the offer-safety predicate.
//
// An allocation is offer safe for a proposal when the holder either got
// everything it wants or got back everything it gave. IsSafe is pure: it only
// reads its arguments and the amount maths it is handed.
package offer

// Package amount defines branded amounts, allocations and the per-brand
// amount math the escrow engine is written against.
//
// The engine never interprets an Amount's Value itself: every comparison and
// every sum goes through the Math registered for the amount's Brand. Two
// maths are provided: NatMath for fungible non-negative quantities backed by
// shopspring/decimal, and SetMath for non-fungible rights identified by
// unique strings.
package amount

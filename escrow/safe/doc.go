// Package safe provides panic-free decimal math.
//
// FloorDivide and PercentOf implement the truncating natural-number arithmetic
// payout contracts use to split an allocation by share.
package safe

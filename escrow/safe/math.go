package safe

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned when attempting to divide by zero.
var ErrDivisionByZero = errors.New("division by zero")

// ErrNegativeValue is returned when natural-number math receives a negative operand.
var ErrNegativeValue = errors.New("negative value")

var hundredDecimal = decimal.NewFromInt(100)

// Divide performs decimal division with zero check.
func Divide(numerator, denominator decimal.Decimal) (decimal.Decimal, error) {
	if denominator.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	return numerator.Div(denominator), nil
}

// DivideRound performs decimal division rounded to places.
func DivideRound(numerator, denominator decimal.Decimal, places int32) (decimal.Decimal, error) {
	if denominator.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	return numerator.DivRound(denominator, places), nil
}

// FloorDivide returns floor(numerator / denominator) for non-negative operands.
//
//	q, err := safe.FloorDivide(decimal.NewFromInt(7), decimal.NewFromInt(2)) // 3
func FloorDivide(numerator, denominator decimal.Decimal) (decimal.Decimal, error) {
	if denominator.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	if numerator.IsNegative() || denominator.IsNegative() {
		return decimal.Zero, ErrNegativeValue
	}

	q, _ := numerator.QuoRem(denominator, 0)

	return q, nil
}

// PercentOf returns floor(total * percent / 100). Both operands must be
// non-negative. The remainder stays unallocated, so callers splitting one
// total into several shares never hand out more than total.
func PercentOf(total, percent decimal.Decimal) (decimal.Decimal, error) {
	if total.IsNegative() || percent.IsNegative() {
		return decimal.Zero, ErrNegativeValue
	}

	return FloorDivide(total.Mul(percent), hundredDecimal)
}

// Percentage calculates (numerator / denominator) * 100.
func Percentage(numerator, denominator decimal.Decimal) (decimal.Decimal, error) {
	if denominator.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	return numerator.Div(denominator).Mul(hundredDecimal), nil
}

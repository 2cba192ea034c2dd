package amount

import (
	"fmt"
	"math/big"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/shopspring/decimal"
)

// NatMath is the algebra of non-negative whole quantities.
type NatMath struct {
	brand Brand
}

// NewNatMath returns the natural-number math for brand.
func NewNatMath(brand Brand) *NatMath {
	return &NatMath{brand: brand}
}

func (m *NatMath) Brand() Brand { return m.brand }

func (m *NatMath) Kind() Kind { return KindNat }

func (m *NatMath) GetEmpty() Amount {
	return Amount{Brand: m.brand, Value: decimal.Zero}
}

// Make accepts int, int64, uint64, string and decimal.Decimal values.
func (m *NatMath) Make(value any) (Amount, error) {
	var d decimal.Decimal

	switch v := value.(type) {
	case decimal.Decimal:
		d = v
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return Amount{}, escrow.InvalidInput(string(m.brand), fmt.Sprintf("not a number: %q", v))
		}

		d = parsed
	default:
		return Amount{}, escrow.InvalidInput(string(m.brand), fmt.Sprintf("unsupported nat value %T", value))
	}

	if d.IsNegative() || !d.IsInteger() {
		return Amount{}, escrow.InvalidInput(string(m.brand), "value must be a natural number: "+d.String())
	}

	return Amount{Brand: m.brand, Value: d}, nil
}

func (m *NatMath) Coerce(a Amount) (Amount, error) {
	if err := checkBrand(m.brand, a); err != nil {
		return Amount{}, err
	}

	return m.Make(a.Value)
}

func (m *NatMath) value(a Amount) (decimal.Decimal, error) {
	coerced, err := m.Coerce(a)
	if err != nil {
		return decimal.Zero, err
	}

	return coerced.Value.(decimal.Decimal), nil
}

func (m *NatMath) values(left, right Amount) (decimal.Decimal, decimal.Decimal, error) {
	l, err := m.value(left)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	r, err := m.value(right)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return l, r, nil
}

func (m *NatMath) IsEmpty(a Amount) (bool, error) {
	v, err := m.value(a)
	if err != nil {
		return false, err
	}

	return v.IsZero(), nil
}

func (m *NatMath) IsGTE(left, right Amount) (bool, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return false, err
	}

	return l.GreaterThanOrEqual(r), nil
}

func (m *NatMath) IsEqual(left, right Amount) (bool, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return false, err
	}

	return l.Equal(r), nil
}

func (m *NatMath) Add(left, right Amount) (Amount, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return Amount{}, err
	}

	return Amount{Brand: m.brand, Value: l.Add(r)}, nil
}

func (m *NatMath) Subtract(left, right Amount) (Amount, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return Amount{}, err
	}

	if l.LessThan(r) {
		return Amount{}, escrow.NewDomainError(escrow.ErrorInsufficientAmount, string(m.brand),
			fmt.Sprintf("cannot subtract %s from %s", r, l))
	}

	return Amount{Brand: m.brand, Value: l.Sub(r)}, nil
}

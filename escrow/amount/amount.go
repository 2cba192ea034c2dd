package amount

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Brand identifies an asset kind. Amounts of different brands never combine.
type Brand string

// Kind names the value algebra of a brand.
type Kind string

const (
	// KindNat is the natural-number algebra.
	KindNat Kind = "nat"
	// KindSet is the unique-element set algebra.
	KindSet Kind = "set"
)

// Amount is a branded quantity. Value is opaque outside the brand's Math:
// decimal.Decimal for KindNat and a sorted []string for KindSet.
type Amount struct {
	Brand Brand
	Value any
}

// Nat builds a natural-number amount. It does not validate; pass it through
// the brand's Math before trusting it.
func Nat(brand Brand, value int64) Amount {
	return Amount{Brand: brand, Value: decimal.NewFromInt(value)}
}

// NatDecimal builds a natural-number amount from a decimal.
func NatDecimal(brand Brand, value decimal.Decimal) Amount {
	return Amount{Brand: brand, Value: value}
}

// Set builds a set amount from elements.
func Set(brand Brand, elements ...string) Amount {
	v := slices.Clone(elements)
	slices.Sort(v)

	return Amount{Brand: brand, Value: v}
}

// String renders the amount for logs and error messages.
func (a Amount) String() string {
	switch v := a.Value.(type) {
	case decimal.Decimal:
		return fmt.Sprintf("%s %s", v.String(), a.Brand)
	case []string:
		return fmt.Sprintf("{%s} %s", strings.Join(v, ","), a.Brand)
	default:
		return fmt.Sprintf("%v %s", a.Value, a.Brand)
	}
}

// Allocation maps keywords to amounts.
type Allocation map[string]Amount

// Clone returns a shallow copy of the allocation.
func (a Allocation) Clone() Allocation {
	if a == nil {
		return Allocation{}
	}

	return maps.Clone(a)
}

// Keywords returns the allocation keywords in sorted order.
func (a Allocation) Keywords() []string {
	return slices.Sorted(maps.Keys(a))
}

// Merge returns base overlaid with overlay: keywords in overlay replace the
// base entry, every other base keyword is carried over unchanged.
func Merge(base, overlay Allocation) Allocation {
	out := base.Clone()
	maps.Copy(out, overlay)

	return out
}

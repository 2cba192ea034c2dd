package amount

import (
	"fmt"
	"slices"

	"github.com/LerianStudio/lib-escrow/escrow"
)

// SetMath is the algebra of sets of unique, non-fungible elements.
// Values are kept sorted so equal sets compare equal element-wise.
type SetMath struct {
	brand Brand
}

// NewSetMath returns the set math for brand.
func NewSetMath(brand Brand) *SetMath {
	return &SetMath{brand: brand}
}

func (m *SetMath) Brand() Brand { return m.brand }

func (m *SetMath) Kind() Kind { return KindSet }

func (m *SetMath) GetEmpty() Amount {
	return Amount{Brand: m.brand, Value: []string{}}
}

// Make accepts a []string without duplicates.
func (m *SetMath) Make(value any) (Amount, error) {
	elements, ok := value.([]string)
	if !ok {
		return Amount{}, escrow.InvalidInput(string(m.brand), fmt.Sprintf("unsupported set value %T", value))
	}

	sorted := slices.Clone(elements)
	slices.Sort(sorted)

	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return Amount{}, escrow.InvalidInput(string(m.brand), "set has duplicate element "+sorted[i])
		}
	}

	if sorted == nil {
		sorted = []string{}
	}

	return Amount{Brand: m.brand, Value: sorted}, nil
}

func (m *SetMath) Coerce(a Amount) (Amount, error) {
	if err := checkBrand(m.brand, a); err != nil {
		return Amount{}, err
	}

	return m.Make(a.Value)
}

func (m *SetMath) values(left, right Amount) ([]string, []string, error) {
	l, err := m.Coerce(left)
	if err != nil {
		return nil, nil, err
	}

	r, err := m.Coerce(right)
	if err != nil {
		return nil, nil, err
	}

	return l.Value.([]string), r.Value.([]string), nil
}

func (m *SetMath) IsEmpty(a Amount) (bool, error) {
	c, err := m.Coerce(a)
	if err != nil {
		return false, err
	}

	return len(c.Value.([]string)) == 0, nil
}

// IsGTE reports whether left is a superset of right.
func (m *SetMath) IsGTE(left, right Amount) (bool, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return false, err
	}

	return containsAll(l, r), nil
}

func (m *SetMath) IsEqual(left, right Amount) (bool, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return false, err
	}

	return slices.Equal(l, r), nil
}

// Add unions disjoint sets. Overlapping elements would duplicate a unique right.
func (m *SetMath) Add(left, right Amount) (Amount, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return Amount{}, err
	}

	return m.Make(append(slices.Clone(l), r...))
}

func (m *SetMath) Subtract(left, right Amount) (Amount, error) {
	l, r, err := m.values(left, right)
	if err != nil {
		return Amount{}, err
	}

	if !containsAll(l, r) {
		return Amount{}, escrow.NewDomainError(escrow.ErrorInsufficientAmount, string(m.brand),
			fmt.Sprintf("%v is not contained in %v", r, l))
	}

	out := make([]string, 0, len(l)-len(r))

	for _, e := range l {
		if _, found := slices.BinarySearch(r, e); !found {
			out = append(out, e)
		}
	}

	return Amount{Brand: m.brand, Value: out}, nil
}

func containsAll(sortedSuper, sortedSub []string) bool {
	for _, e := range sortedSub {
		if _, found := slices.BinarySearch(sortedSuper, e); !found {
			return false
		}
	}

	return true
}

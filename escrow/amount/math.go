package amount

import (
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow"
)

// Math is the value algebra of one brand. Every method rejects amounts of a
// different brand with escrow.ErrBrandMismatch.
type Math interface {
	Brand() Brand
	Kind() Kind
	// Make builds a validated amount of this brand from a raw value.
	Make(value any) (Amount, error)
	// Coerce validates an existing amount and returns its canonical form.
	Coerce(a Amount) (Amount, error)
	GetEmpty() Amount
	IsEmpty(a Amount) (bool, error)
	IsGTE(left, right Amount) (bool, error)
	IsEqual(left, right Amount) (bool, error)
	Add(left, right Amount) (Amount, error)
	// Subtract fails with escrow.ErrInsufficientAmount when right is not contained in left.
	Subtract(left, right Amount) (Amount, error)
}

// Lookup resolves the Math for a brand.
type Lookup interface {
	MathFor(brand Brand) (Math, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(brand Brand) (Math, error)

// MathFor calls f.
//
//nolint:ireturn
func (f LookupFunc) MathFor(brand Brand) (Math, error) {
	return f(brand)
}

// Registry is a concurrency-safe brand to Math table.
type Registry struct {
	mu    sync.RWMutex
	maths map[Brand]Math
}

// NewRegistry returns a registry holding maths.
func NewRegistry(maths ...Math) (*Registry, error) {
	r := &Registry{maths: make(map[Brand]Math, len(maths))}

	for _, m := range maths {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds m. A brand may be registered once.
func (r *Registry) Register(m Math) error {
	if m == nil || m.Brand() == "" {
		return escrow.InvalidInput("brand", "math must carry a brand")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.maths[m.Brand()]; exists {
		return escrow.InvalidInput(string(m.Brand()), "brand already registered")
	}

	r.maths[m.Brand()] = m

	return nil
}

// MathFor returns the math for brand or escrow.ErrUnknownBrand.
//
//nolint:ireturn
func (r *Registry) MathFor(brand Brand) (Math, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.maths[brand]
	if !ok {
		return nil, escrow.NewDomainError(escrow.ErrorUnknownBrand, string(brand), "brand is not registered")
	}

	return m, nil
}

// Brands returns every registered brand.
func (r *Registry) Brands() []Brand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Brand, 0, len(r.maths))
	for b := range r.maths {
		out = append(out, b)
	}

	return out
}

func checkBrand(want Brand, amounts ...Amount) error {
	for _, a := range amounts {
		if a.Brand != want {
			return escrow.NewDomainError(escrow.ErrorBrandMismatch, string(a.Brand),
				fmt.Sprintf("expected brand %s", want))
		}
	}

	return nil
}

// Sum adds amounts with m, starting from empty.
func Sum(m Math, amounts ...Amount) (Amount, error) {
	total := m.GetEmpty()

	for _, a := range amounts {
		var err error
		if total, err = m.Add(total, a); err != nil {
			return Amount{}, err
		}
	}

	return total, nil
}

// CoerceAllocation validates every amount of alloc through lookup.
func CoerceAllocation(lookup Lookup, alloc Allocation) (Allocation, error) {
	out := make(Allocation, len(alloc))

	for keyword, a := range alloc {
		m, err := lookup.MathFor(a.Brand)
		if err != nil {
			return nil, err
		}

		coerced, err := m.Coerce(a)
		if err != nil {
			return nil, fmt.Errorf("keyword %s: %w", keyword, err)
		}

		out[keyword] = coerced
	}

	return out, nil
}

package offer

import (
	"github.com/LerianStudio/lib-escrow/escrow/amount"
)

// IsSafe reports whether alloc is offer safe for p: every want keyword is
// covered by alloc, or every give keyword is. A keyword missing from alloc
// counts as the empty amount of the wanted or given brand. Amounts are
// compared per keyword; a surplus of one want never offsets a shortfall of
// another, and a refund and a want are never mixed.
func IsSafe(lookup amount.Lookup, p Proposal, alloc amount.Allocation) (bool, error) {
	refunded, err := covers(lookup, p.Give, alloc)
	if err != nil {
		return false, err
	}

	if refunded {
		return true, nil
	}

	return covers(lookup, p.Want, alloc)
}

// covers reports whether alloc holds at least required[kw] for every keyword.
func covers(lookup amount.Lookup, required, alloc amount.Allocation) (bool, error) {
	for kw, need := range required {
		m, err := lookup.MathFor(need.Brand)
		if err != nil {
			return false, err
		}

		have, ok := alloc[kw]
		if !ok {
			have = m.GetEmpty()
		}

		enough, err := m.IsGTE(have, need)
		if err != nil {
			return false, err
		}

		if !enough {
			return false, nil
		}
	}

	return true, nil
}

// SatisfiesWant reports whether alloc covers every want keyword of p.
func SatisfiesWant(lookup amount.Lookup, p Proposal, alloc amount.Allocation) (bool, error) {
	return covers(lookup, p.Want, alloc)
}

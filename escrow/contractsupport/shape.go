package contractsupport

import (
	"maps"
	"slices"
	"strings"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
)

// ProposalShape lists the keywords a contract expects. A nil field is not
// checked.
type ProposalShape struct {
	Give []string
	Want []string
	Exit []offer.ExitKind
}

// AssertProposalShape checks that the seat proposal uses exactly the
// expected keywords and one of the expected exit kinds.
func AssertProposalShape(s *seat.Seat, shape ProposalShape) error {
	p := s.Proposal()

	if shape.Give != nil {
		if err := assertKeys("give", p.Give, shape.Give); err != nil {
			return err
		}
	}

	if shape.Want != nil {
		if err := assertKeys("want", p.Want, shape.Want); err != nil {
			return err
		}
	}

	if shape.Exit != nil && !slices.Contains(shape.Exit, p.Exit.Kind) {
		return escrow.InvalidInput("exit", "exit kind "+string(p.Exit.Kind)+" is not accepted")
	}

	return nil
}

func assertKeys(field string, got amount.Allocation, want []string) error {
	expected := slices.Sorted(slices.Values(want))
	actual := got.Keywords()

	if !slices.Equal(expected, actual) {
		return escrow.InvalidInput(field, "keywords ["+strings.Join(actual, ",")+"] do not match expected ["+
			strings.Join(expected, ",")+"]")
	}

	return nil
}

// Satisfies reports whether the seat's wants would be met if update were
// merged over its current allocation.
func Satisfies(s *seat.Seat, update amount.Allocation) (bool, error) {
	current, err := s.CurrentAllocation()
	if err != nil {
		return false, err
	}

	return offer.SatisfiesWant(s.Instance().Lookup(), s.Proposal(), amount.Merge(current, update))
}

// MapKeywords renames the keys of record through mapping. Keys without a
// mapping keep their name.
func MapKeywords[M ~map[string]V, V any](record M, mapping map[string]string) M {
	out := make(M, len(record))

	for kw, v := range record {
		if to, ok := mapping[kw]; ok {
			out[to] = v
		} else {
			out[kw] = v
		}
	}

	return out
}

// ReverseMapping inverts a keyword mapping.
func ReverseMapping(mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))

	for _, from := range slices.Sorted(maps.Keys(mapping)) {
		out[mapping[from]] = from
	}

	return out
}

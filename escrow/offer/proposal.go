package offer

import (
	"fmt"
	"regexp"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
)

// KeywordPattern is the syntax every give and want keyword must match.
const KeywordPattern = `^[A-Z][A-Za-z0-9_$]*$`

var keywordRE = regexp.MustCompile(KeywordPattern)

// ExitKind selects how a seat may be exited.
type ExitKind string

const (
	// ExitOnDemand lets the seat holder exit at any time.
	ExitOnDemand ExitKind = "onDemand"
	// ExitWaived gives the holder no exit; only the contract may exit the seat.
	ExitWaived ExitKind = "waived"
	// ExitAfterDeadline exits the seat automatically at Deadline.
	ExitAfterDeadline ExitKind = "afterDeadline"
)

// ExitRule is the exit condition of a proposal.
type ExitRule struct {
	Kind     ExitKind
	Deadline time.Time
}

// Proposal is what a seat holder gives, what it wants in exchange, and how it may leave.
type Proposal struct {
	Give amount.Allocation
	Want amount.Allocation
	Exit ExitRule
}

// EmptyProposal is the proposal of seats created without an offer.
func EmptyProposal() Proposal {
	return Proposal{
		Give: amount.Allocation{},
		Want: amount.Allocation{},
		Exit: ExitRule{Kind: ExitOnDemand},
	}
}

// Clone returns a copy whose allocations can be modified independently.
func (p Proposal) Clone() Proposal {
	return Proposal{Give: p.Give.Clone(), Want: p.Want.Clone(), Exit: p.Exit}
}

// Keywords returns every give and want keyword.
func (p Proposal) Keywords() []string {
	return amount.Merge(p.Give, p.Want).Keywords()
}

// Clean validates a caller-supplied proposal and returns its canonical form:
// keywords are checked against KeywordPattern, a keyword may not be both given
// and wanted, every amount is coerced through its brand's math, and a missing
// exit rule defaults to onDemand.
func Clean(lookup amount.Lookup, p Proposal) (Proposal, error) {
	for _, kw := range p.Keywords() {
		if err := ValidateKeyword(kw); err != nil {
			return Proposal{}, err
		}
	}

	for kw := range p.Give {
		if _, both := p.Want[kw]; both {
			return Proposal{}, escrow.InvalidInput(kw, "keyword cannot be in both give and want")
		}
	}

	give, err := amount.CoerceAllocation(lookup, p.Give)
	if err != nil {
		return Proposal{}, fmt.Errorf("give: %w", err)
	}

	want, err := amount.CoerceAllocation(lookup, p.Want)
	if err != nil {
		return Proposal{}, fmt.Errorf("want: %w", err)
	}

	exit, err := cleanExit(p.Exit)
	if err != nil {
		return Proposal{}, err
	}

	return Proposal{Give: give, Want: want, Exit: exit}, nil
}

// ValidateKeyword checks a single keyword.
func ValidateKeyword(keyword string) error {
	if !keywordRE.MatchString(keyword) {
		return escrow.InvalidInput(keyword, "keyword must be ascii, start with a capital letter and match "+KeywordPattern)
	}

	return nil
}

func cleanExit(rule ExitRule) (ExitRule, error) {
	switch rule.Kind {
	case "":
		return ExitRule{Kind: ExitOnDemand}, nil
	case ExitOnDemand, ExitWaived:
		return ExitRule{Kind: rule.Kind}, nil
	case ExitAfterDeadline:
		if rule.Deadline.IsZero() {
			return ExitRule{}, escrow.InvalidInput("exit.deadline", "afterDeadline requires a deadline")
		}

		return rule, nil
	default:
		return ExitRule{}, escrow.InvalidInput("exit", fmt.Sprintf("unknown exit kind %q", rule.Kind))
	}
}

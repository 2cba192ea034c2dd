package contractsupport

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
)

// DefaultAcceptanceMsg is returned by Swap and SwapExact on success.
const DefaultAcceptanceMsg = "The offer has been accepted. Once the contract has been completed, please check your payout"

// Reallocator commits stagings atomically. *seat.Instance and
// *service.Facet both satisfy it.
type Reallocator interface {
	Reallocate(ctx context.Context, stagings ...*seat.Staging) error
}

// SeatGainsLosses describes one side of a trade. When Losses is nil the
// other side's Gains are used, which requires both seats to share keywords.
type SeatGainsLosses struct {
	Seat   *seat.Seat
	Gains  amount.Allocation
	Losses amount.Allocation
}

// Trade moves assets between two seats in one reallocation. Nothing changes,
// and no staging is left outstanding, when either seat has exited or either
// staging is rejected. exitedMsgs
// optionally replace the SeatExited message for the left and right seat.
func Trade(ctx context.Context, r Reallocator, left, right SeatGainsLosses, exitedMsgs ...string) error {
	if left.Seat == nil || right.Seat == nil {
		return escrow.InvalidInput("seat", "both trade seats are required")
	}

	if left.Seat == right.Seat {
		return escrow.InvalidInput("seat", "a seat cannot trade with itself")
	}

	if left.Seat.HasExited() {
		return escrow.SeatExited(exitedMsg(exitedMsgs, 0, "left seat has exited"))
	}

	if right.Seat.HasExited() {
		return escrow.SeatExited(exitedMsg(exitedMsgs, 1, "right seat has exited"))
	}

	leftLosses := left.Losses
	if leftLosses == nil {
		leftLosses = right.Gains
	}

	rightLosses := right.Losses
	if rightLosses == nil {
		rightLosses = left.Gains
	}

	leftStaging, err := stageDelta(ctx, left.Seat, left.Gains, leftLosses)
	if err != nil {
		return fmt.Errorf("left seat: %w", err)
	}

	rightStaging, err := stageDelta(ctx, right.Seat, right.Gains, rightLosses)
	if err != nil {
		leftStaging.Discard()

		return fmt.Errorf("right seat: %w", err)
	}

	if err := r.Reallocate(ctx, leftStaging, rightStaging); err != nil {
		leftStaging.Discard()
		rightStaging.Discard()

		return err
	}

	return nil
}

// Swap trades so that each seat receives exactly what it wants, taken from
// what the other seat holds; any surplus stays with its holder. Both seats
// exit on success. On any failure both seats fail and no assets move.
func Swap(ctx context.Context, r Reallocator, left, right *seat.Seat, exitedMsgs ...string) (string, error) {
	if left == nil || right == nil {
		return "", escrow.InvalidInput("seat", "both swap seats are required")
	}

	err := Trade(ctx, r,
		SeatGainsLosses{Seat: left, Gains: left.Proposal().Want},
		SeatGainsLosses{Seat: right, Gains: right.Proposal().Want},
		exitedMsgs...,
	)

	return finishSwap(ctx, left, right, err)
}

// SwapExact trades so that each seat ends with exactly its wants and gives
// up exactly its gives. Both seats exit on success and fail otherwise.
func SwapExact(ctx context.Context, r Reallocator, left, right *seat.Seat, exitedMsgs ...string) (string, error) {
	if left == nil || right == nil {
		return "", escrow.InvalidInput("seat", "both swap seats are required")
	}

	lp, rp := left.Proposal(), right.Proposal()

	err := Trade(ctx, r,
		SeatGainsLosses{Seat: left, Gains: lp.Want, Losses: lp.Give},
		SeatGainsLosses{Seat: right, Gains: rp.Want, Losses: rp.Give},
		exitedMsgs...,
	)

	return finishSwap(ctx, left, right, err)
}

func finishSwap(ctx context.Context, left, right *seat.Seat, err error) (string, error) {
	if err != nil {
		if errors.Is(err, escrow.ErrInsufficientAmount) || errors.Is(err, escrow.ErrOfferSafetyViolation) {
			err = fmt.Errorf("%w: %w", escrow.NewDomainError(escrow.ErrorWantsNotSatisfied, "swap",
				"the seats cannot satisfy each other's wants"), err)
		}

		_ = left.Fail(ctx, err)
		_ = right.Fail(ctx, err)

		return "", err
	}

	if exitErr := errors.Join(left.Exit(ctx, nil), right.Exit(ctx, nil)); exitErr != nil {
		return "", exitErr
	}

	return DefaultAcceptanceMsg, nil
}

// stageDelta stages current + gains - losses for the touched keywords.
func stageDelta(ctx context.Context, s *seat.Seat, gains, losses amount.Allocation) (*seat.Staging, error) {
	lookup := s.Instance().Lookup()

	current, err := s.CurrentAllocation()
	if err != nil {
		return nil, err
	}

	next := current.Clone()

	for _, kw := range gains.Keywords() {
		g := gains[kw]

		m, err := lookup.MathFor(g.Brand)
		if err != nil {
			return nil, err
		}

		have, ok := next[kw]
		if !ok {
			have = m.GetEmpty()
		}

		if next[kw], err = m.Add(have, g); err != nil {
			return nil, err
		}
	}

	for _, kw := range losses.Keywords() {
		l := losses[kw]

		m, err := lookup.MathFor(l.Brand)
		if err != nil {
			return nil, err
		}

		have, ok := next[kw]
		if !ok {
			have = m.GetEmpty()
		}

		if next[kw], err = m.Subtract(have, l); err != nil {
			return nil, err
		}
	}

	delta := make(amount.Allocation, len(gains)+len(losses))
	for kw := range gains {
		delta[kw] = next[kw]
	}

	for kw := range losses {
		delta[kw] = next[kw]
	}

	return s.Stage(ctx, delta)
}

func exitedMsg(msgs []string, i int, fallback string) string {
	if i < len(msgs) && msgs[i] != "" {
		return msgs[i]
	}

	return fallback
}

package contractsupport

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"github.com/LerianStudio/lib-escrow/escrow/future"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
	"github.com/LerianStudio/lib-escrow/escrow/service"
)

// BridgeState is the lifecycle of an OfferTo bridge.
type BridgeState string

const (
	BridgePending BridgeState = "pending"
	BridgeSettled BridgeState = "settled"
	BridgeFailed  BridgeState = "failed"
)

var bridgeTransitions = map[BridgeState][]BridgeState{
	BridgePending: {BridgeSettled, BridgeFailed},
}

// Bridge is an offer made on behalf of a seat to another instance.
type Bridge struct {
	// UserSeat resolves with the seat created on the target instance.
	UserSeat *future.Future[*service.UserSeat]
	// Deposited resolves with what was credited back to the receiving seat,
	// in its keywords, or rejects with BridgeSettlementFailure.
	Deposited *future.Future[amount.Allocation]
	// Refund resolves with the payouts of the bridging seat. It is empty
	// unless whatever the bridge held could not be handed back to a seat.
	Refund *future.Future[service.Payouts]

	state *StateMachine[BridgeState]
}

// State returns the bridge state.
func (b *Bridge) State() BridgeState {
	return b.state.State()
}

// OfferTo moves the give amounts of proposal out of from into a fresh
// bridging seat and redeems inv with them. proposal uses the target's
// keywords; mapping renames from's keywords to the target's. When the target
// seat pays out, the payouts are credited to to (from when nil) and the
// bridging seat exits. When the offer cannot be made, or its handler fails,
// whatever the bridge still holds goes back to from, the bridging seat
// fails, and Deposited rejects with BridgeSettlementFailure. What could not
// go back to from is paid out on Refund.
func OfferTo(
	ctx context.Context,
	f *service.Facet,
	inv service.Invitation,
	mapping map[string]string,
	proposal offer.Proposal,
	from, to *seat.Seat,
) (*Bridge, error) {
	if from == nil {
		return nil, escrow.InvalidInput("from", "source seat is required")
	}

	if to == nil {
		to = from
	}

	reverse := ReverseMapping(mapping)
	fromAmounts := MapKeywords(proposal.Give, reverse)

	bridgeSeat, bridgeUser, err := f.MakeEmptySeatKit(offer.EmptyProposal())
	if err != nil {
		return nil, err
	}

	err = Trade(ctx, f,
		SeatGainsLosses{Seat: from, Gains: amount.Allocation{}, Losses: fromAmounts},
		SeatGainsLosses{Seat: bridgeSeat, Gains: proposal.Give, Losses: amount.Allocation{}},
	)
	if err != nil {
		_ = bridgeSeat.Fail(ctx, err)

		return nil, err
	}

	b := &Bridge{Refund: bridgeUser.Payouts(), state: NewStateMachine(BridgePending, bridgeTransitions)}
	b.UserSeat = f.OfferFromSeat(ctx, inv, proposal, bridgeSeat)

	br := &bridgeRun{f: f, b: b, bridgeSeat: bridgeSeat, from: from, to: to, reverse: reverse}
	logger, _, _, _ := escrow.NewTrackingFromContext(ctx)

	b.Deposited = future.Go(ctx, logger, "offer_to", br.run)

	return b, nil
}

type bridgeRun struct {
	f          *service.Facet
	b          *Bridge
	bridgeSeat *seat.Seat
	from, to   *seat.Seat
	reverse    map[string]string
}

func (br *bridgeRun) run(ctx context.Context) (amount.Allocation, error) {
	logger, tracer, _, metricFactory := escrow.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "escrow.offer_to")
	defer span.End()

	settle := func(deposited amount.Allocation, cause error) (amount.Allocation, error) {
		if cause == nil {
			if err := br.b.state.TransitionTo(BridgeSettled); err != nil {
				return nil, err
			}

			_ = br.bridgeSeat.Exit(ctx, nil)
			_ = metricFactory.RecordBridgeSettled(ctx, string(BridgeSettled))

			return deposited, nil
		}

		if back := br.moveAll(ctx, br.from, br.reverse); back != nil {
			logger.Log(ctx, log.LevelError, "bridge could not return assets", log.Err(back))
			cause = errors.Join(cause, back)
		}

		_ = br.bridgeSeat.Fail(ctx, cause)
		_ = br.b.state.TransitionTo(BridgeFailed)
		_ = metricFactory.RecordBridgeSettled(ctx, string(BridgeFailed))

		err := escrow.BridgeSettlementFailure(cause)
		opentelemetry.HandleSpanBusinessErrorEvent(span, constant.EventBridgeFailed, err)

		return deposited, err
	}

	us, err := br.b.UserSeat.Await(ctx)
	if err != nil {
		return settle(nil, err)
	}

	payouts, err := us.Payouts().Await(ctx)
	if err != nil {
		return settle(nil, err)
	}

	credited, err := br.f.Deposit(ctx, br.bridgeSeat, MapKeywords(payouts, br.reverse))
	if err != nil {
		return settle(nil, fmt.Errorf("credit payouts to bridge: %w", err))
	}

	_, offerErr := us.OfferResult().Await(ctx)

	dest := br.to
	if offerErr != nil {
		dest = br.from
	}

	if err := br.moveAll(ctx, dest, nil); err != nil {
		return settle(nil, err)
	}

	if offerErr != nil {
		return settle(credited, offerErr)
	}

	return settle(credited, nil)
}

// moveAll hands every non-empty amount of the bridging seat to dest, renaming
// keywords through mapping.
func (br *bridgeRun) moveAll(ctx context.Context, dest *seat.Seat, mapping map[string]string) error {
	held, err := br.bridgeSeat.CurrentAllocation()
	if err != nil {
		return err
	}

	lookup := br.f.Lookup()
	losses := amount.Allocation{}

	for kw, a := range held {
		m, err := lookup.MathFor(a.Brand)
		if err != nil {
			return err
		}

		if empty, err := m.IsEmpty(a); err != nil {
			return err
		} else if !empty {
			losses[kw] = a
		}
	}

	if len(losses) == 0 {
		return nil
	}

	return Trade(ctx, br.f,
		SeatGainsLosses{Seat: br.bridgeSeat, Gains: amount.Allocation{}, Losses: losses},
		SeatGainsLosses{Seat: dest, Gains: MapKeywords(losses, mapping), Losses: amount.Allocation{}},
	)
}

package service

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
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
	"go.opentelemetry.io/otel/attribute"
)

// Offer redeems inv with proposal. Every give keyword must be paid with a
// payment of exactly the given amount; the payments are escrowed in the pool
// and become the seat's initial allocation, with want keywords starting
// empty. The future resolves with the user seat once the seat exists; the
// handler result arrives later on UserSeat.OfferResult.
func (s *Service) Offer(ctx context.Context, inv Invitation, proposal offer.Proposal, payments map[string]purse.Payment) *future.Future[*UserSeat] {
	return future.Go(ctx, s.logger, "offer", func(ctx context.Context) (*UserSeat, error) {
		ctx, span := s.tracer.Start(ctx, "escrow.offer")
		defer span.End()

		us, err := s.offer(ctx, inv, proposal, payments)
		if err != nil {
			opentelemetry.HandleSpanBusinessErrorEvent(span, "escrow.offer_rejected", err)

			return nil, err
		}

		return us, nil
	})
}

func (s *Service) offer(ctx context.Context, inv Invitation, proposal offer.Proposal, payments map[string]purse.Payment) (*UserSeat, error) {
	rec, err := s.redeem(inv)
	if err != nil {
		return nil, err
	}

	cleaned, err := offer.Clean(s.registry, proposal)
	if err != nil {
		return nil, err
	}

	initial, err := s.escrowPayments(ctx, cleaned, payments)
	if err != nil {
		return nil, err
	}

	us, _, err := rec.facet.newOfferSeat(cleaned, initial)
	if err != nil {
		return nil, s.refund(ctx, initial, err)
	}

	rec.facet.runHandler(ctx, rec, us)

	return us, nil
}

// OfferFromSeat redeems inv with assets held by funding, a seat of this
// facet, instead of fresh payments. The give amounts of proposal move from
// funding to the new seat inside the pool; nothing is withdrawn.
func (f *Facet) OfferFromSeat(ctx context.Context, inv Invitation, proposal offer.Proposal, funding *seat.Seat) *future.Future[*UserSeat] {
	s := f.svc

	return future.Go(ctx, s.logger, "offer_from_seat", func(ctx context.Context) (*UserSeat, error) {
		ctx, span := s.tracer.Start(ctx, "escrow.offer_from_seat")
		defer span.End()

		span.SetAttributes(attribute.String(constant.AttrInstanceID, f.ID()))

		us, err := f.offerFromSeat(ctx, inv, proposal, funding)
		if err != nil {
			opentelemetry.HandleSpanBusinessErrorEvent(span, "escrow.offer_rejected", err)

			return nil, err
		}

		return us, nil
	})
}

func (f *Facet) offerFromSeat(ctx context.Context, inv Invitation, proposal offer.Proposal, funding *seat.Seat) (*UserSeat, error) {
	s := f.svc

	fundingAdmin, err := f.admin(funding)
	if err != nil {
		return nil, err
	}

	rec, err := s.redeem(inv)
	if err != nil {
		return nil, err
	}

	cleaned, err := offer.Clean(s.registry, proposal)
	if err != nil {
		return nil, err
	}

	current, err := funding.CurrentAllocation()
	if err != nil {
		return nil, err
	}

	remaining, err := subtract(s.registry, current, cleaned.Give)
	if err != nil {
		return nil, fmt.Errorf("funding seat cannot cover give: %w", err)
	}

	staging, err := funding.Stage(ctx, remaining)
	if err != nil {
		return nil, err
	}

	initial, err := withEmptyWants(s.registry, cleaned)
	if err != nil {
		return nil, err
	}

	us, admin, err := rec.facet.newOfferSeat(cleaned, initial)
	if err != nil {
		return nil, err
	}

	if err := fundingAdmin.Commit(ctx, staging); err != nil {
		// The new seat never held real assets: retire it without a payout.
		_ = admin.UpdateHasExited()
		rec.facet.untrack(admin.Seat().Handle())

		return nil, err
	}

	rec.facet.runHandler(ctx, rec, us)

	return us, nil
}

// redeem consumes inv. Redeeming an unknown or used invitation fails with
// InvalidInvitation; a consumed invitation stays consumed even when its
// instance no longer accepts offers.
func (s *Service) redeem(inv Invitation) (*invitation, error) {
	s.mu.Lock()
	rec, ok := s.invitations[inv.Handle]
	delete(s.invitations, inv.Handle)
	s.mu.Unlock()

	if !ok {
		return nil, escrow.NewDomainError(escrow.ErrorInvalidInvitation, "invitation", "invitation is unknown or already used")
	}

	if !rec.facet.IsAcceptingOffers() {
		return nil, escrow.NewDomainError(escrow.ErrorOfferNotAccepted, "instance", "no further offers are accepted")
	}

	return rec, nil
}

// escrowPayments deposits one payment per give keyword and returns the
// resulting initial allocation. Deposits already made are refunded when a
// later one fails.
func (s *Service) escrowPayments(ctx context.Context, p offer.Proposal, payments map[string]purse.Payment) (amount.Allocation, error) {
	for kw := range payments {
		if _, ok := p.Give[kw]; !ok {
			return nil, escrow.InvalidInput(kw, "payment for a keyword that is not given")
		}
	}

	deposited := amount.Allocation{}

	for _, kw := range p.Give.Keywords() {
		give := p.Give[kw]

		pay, ok := payments[kw]
		if !ok {
			return nil, s.refund(ctx, deposited, escrow.InvalidInput(kw, "missing payment for given keyword"))
		}

		m, err := s.registry.MathFor(give.Brand)
		if err != nil {
			return nil, s.refund(ctx, deposited, err)
		}

		equal, err := m.IsEqual(pay.Amount, give)
		if err != nil {
			return nil, s.refund(ctx, deposited, err)
		}

		if !equal {
			return nil, s.refund(ctx, deposited,
				escrow.InvalidInput(kw, "payment "+pay.Amount.String()+" does not match give "+give.String()))
		}

		bank, err := s.Purse(give.Brand)
		if err != nil {
			return nil, s.refund(ctx, deposited, err)
		}

		credited, err := bank.Deposit(ctx, pay)
		if err != nil {
			return nil, s.refund(ctx, deposited, err)
		}

		deposited[kw] = credited
	}

	initial, err := withEmptyWants(s.registry, p)
	if err != nil {
		return nil, s.refund(ctx, deposited, err)
	}

	return amount.Merge(initial, deposited), nil
}

// refund withdraws alloc back out of the pool after cause made an escrow
// fail. The refunded payments travel back in a *PayoutError wrapping cause;
// with nothing to refund cause is returned as is.
func (s *Service) refund(ctx context.Context, alloc amount.Allocation, cause error) error {
	if len(alloc) == 0 {
		return cause
	}

	refunded, err := s.payout(ctx, alloc)
	if err == nil {
		return &PayoutError{Err: cause, Payouts: refunded, Unclaimed: amount.Allocation{}}
	}

	s.logger.Log(ctx, log.LevelError, "refund of escrowed payments failed", log.Err(err))

	var perr *PayoutError
	if !errors.As(err, &perr) {
		return errors.Join(cause, err)
	}

	return &PayoutError{Err: errors.Join(cause, perr.Err), Payouts: perr.Payouts, Unclaimed: perr.Unclaimed}
}

// newOfferSeat creates a seat for a redeemed offer without running its handler.
func (f *Facet) newOfferSeat(p offer.Proposal, initial amount.Allocation) (*UserSeat, *seat.Admin, error) {
	us := newUserSeat(f)

	s, admin, err := f.inst.NewSeatKit(p, initial, seat.SettlerFunc(us.settle))
	if err != nil {
		return nil, nil, err
	}

	f.track(admin)
	us.attach(s)

	return us, admin, nil
}

// runHandler runs the invitation handler on its own goroutine. A handler
// error or panic fails the seat.
func (f *Facet) runHandler(ctx context.Context, rec *invitation, us *UserSeat) {
	s := us.seatRef()
	ctx = context.WithoutCancel(ctx)

	future.Go(ctx, f.logger, "offer_handler", func(ctx context.Context) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				reason := fmt.Errorf("offer handler panicked: %v", r)
				_ = s.Fail(ctx, reason)
				_ = us.offerKit.Reject(reason)

				panic(r)
			}
		}()

		result, err = rec.handler(ctx, s)
		if err != nil {
			_ = s.Fail(ctx, err)
		}

		_ = us.offerKit.Settle(result, err)

		return result, err
	})
}

// withEmptyWants returns the give amounts of p plus an empty amount for
// every want keyword.
func withEmptyWants(lookup amount.Lookup, p offer.Proposal) (amount.Allocation, error) {
	out := p.Give.Clone()

	for kw, want := range p.Want {
		m, err := lookup.MathFor(want.Brand)
		if err != nil {
			return nil, err
		}

		out[kw] = m.GetEmpty()
	}

	return out, nil
}

// subtract returns the keywords of take with base[kw] - take[kw].
func subtract(lookup amount.Lookup, base, take amount.Allocation) (amount.Allocation, error) {
	out := make(amount.Allocation, len(take))

	for kw, a := range take {
		m, err := lookup.MathFor(a.Brand)
		if err != nil {
			return nil, err
		}

		have, ok := base[kw]
		if !ok {
			have = m.GetEmpty()
		}

		left, err := m.Subtract(have, a)
		if err != nil {
			return nil, err
		}

		out[kw] = left
	}

	return out, nil
}

// add returns the keywords of extra with base[kw] + extra[kw].
func add(lookup amount.Lookup, base, extra amount.Allocation) (amount.Allocation, error) {
	out := make(amount.Allocation, len(extra))

	for kw, a := range extra {
		m, err := lookup.MathFor(a.Brand)
		if err != nil {
			return nil, err
		}

		have, ok := base[kw]
		if !ok {
			have = m.GetEmpty()
		}

		sum, err := m.Add(have, a)
		if err != nil {
			return nil, err
		}

		out[kw] = sum
	}

	return out, nil
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/errgroup"
	"github.com/LerianStudio/lib-escrow/escrow/future"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/notifier"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry"
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
)

// Payouts maps keywords to the payments withdrawn from escrow at exit.
type Payouts map[string]purse.Payment

// PayoutError reports a payout that did not complete. Unclaimed lists the
// amounts that are still in the pool. Payouts holds payments that left the
// pool and could not be put back; they belong to the caller.
type PayoutError struct {
	Err       error
	Payouts   Payouts
	Unclaimed amount.Allocation
}

func (e *PayoutError) Error() string {
	return "payout failed: " + e.Err.Error()
}

func (e *PayoutError) Unwrap() error {
	return e.Err
}

// UserSeat is the offer holder's view of a seat.
type UserSeat struct {
	facet *Facet

	offerResult *future.Future[any]
	offerKit    *future.Kit[any]
	payouts     *future.Future[Payouts]
	payoutKit   *future.Kit[Payouts]

	mu        sync.Mutex
	seat      *seat.Seat
	final     amount.Allocation
	unclaimed amount.Allocation
}

func newUserSeat(f *Facet) *UserSeat {
	offerResult, offerKit := future.New[any]()
	payouts, payoutKit := future.New[Payouts]()

	return &UserSeat{
		facet:       f,
		offerResult: offerResult,
		offerKit:    offerKit,
		payouts:     payouts,
		payoutKit:   payoutKit,
	}
}

func (us *UserSeat) attach(s *seat.Seat) {
	us.mu.Lock()
	us.seat = s
	us.mu.Unlock()
}

func (us *UserSeat) seatRef() *seat.Seat {
	us.mu.Lock()
	defer us.mu.Unlock()

	return us.seat
}

// CurrentAllocation returns the live allocation, or the final one once the
// seat has exited.
func (us *UserSeat) CurrentAllocation() (amount.Allocation, error) {
	us.mu.Lock()
	final, s := us.final, us.seat
	us.mu.Unlock()

	if final != nil {
		return final.Clone(), nil
	}

	alloc, err := s.CurrentAllocation()
	if errors.Is(err, escrow.ErrSeatExited) {
		// Exited between the two reads; the settler is storing the final allocation.
		us.mu.Lock()
		defer us.mu.Unlock()

		if us.final != nil {
			return us.final.Clone(), nil
		}
	}

	return alloc, err
}

// Proposal returns the seat proposal.
func (us *UserSeat) Proposal() offer.Proposal {
	return us.seatRef().Proposal()
}

// Notifier returns the allocation observer of the seat.
func (us *UserSeat) Notifier() *notifier.Notifier[amount.Allocation] {
	return us.seatRef().Notifier()
}

// HasExited reports whether the seat has exited.
func (us *UserSeat) HasExited() bool {
	return us.seatRef().HasExited()
}

// OfferResult resolves with the handler result of the invitation.
func (us *UserSeat) OfferResult() *future.Future[any] {
	return us.offerResult
}

// Payouts resolves once every allocated keyword has been withdrawn from
// escrow. It rejects with a *PayoutError when the pool could not pay out;
// the final allocation then stays escrowed until ClaimPayouts succeeds.
func (us *UserSeat) Payouts() *future.Future[Payouts] {
	return us.payouts
}

// Unclaimed returns what a failed payout left in the pool for this seat.
func (us *UserSeat) Unclaimed() amount.Allocation {
	us.mu.Lock()
	defer us.mu.Unlock()

	return us.unclaimed.Clone()
}

// ClaimPayouts retries the withdrawal of the unclaimed amounts and returns
// the payments it withdrew. It has nothing to claim until Payouts rejects.
func (us *UserSeat) ClaimPayouts(ctx context.Context) (Payouts, error) {
	us.mu.Lock()
	pending := us.unclaimed
	us.unclaimed = nil
	us.mu.Unlock()

	if len(pending) == 0 {
		return Payouts{}, nil
	}

	payouts, err := us.facet.svc.payout(ctx, pending)
	if err != nil {
		us.keepUnclaimed(err)

		return nil, err
	}

	return payouts, nil
}

func (us *UserSeat) keepUnclaimed(err error) {
	var perr *PayoutError
	if !errors.As(err, &perr) {
		return
	}

	us.mu.Lock()
	us.unclaimed = amount.Merge(us.unclaimed, perr.Unclaimed)
	us.mu.Unlock()
}

// Payout waits for the payouts and returns the payment of keyword. A keyword
// with nothing allocated has no payment.
func (us *UserSeat) Payout(ctx context.Context, keyword string) (purse.Payment, error) {
	all, err := us.payouts.Await(ctx)
	if err != nil {
		return purse.Payment{}, err
	}

	p, ok := all[keyword]
	if !ok {
		return purse.Payment{}, escrow.InvalidInput("keyword", "no payout for keyword "+keyword)
	}

	return p, nil
}

// TryExit exits the seat when its proposal allows exit on demand.
func (us *UserSeat) TryExit(ctx context.Context) error {
	s := us.seatRef()

	if kind := s.Proposal().Exit.Kind; kind != offer.ExitOnDemand {
		return escrow.InvalidInput("exit", "seat with exit rule "+string(kind)+" cannot be exited on demand")
	}

	return s.Exit(ctx, nil)
}

// settle withdraws the final allocation from the pool. It runs once, right
// after the seat exits or fails.
func (us *UserSeat) settle(ctx context.Context, outcome seat.Outcome) {
	f := us.facet

	us.mu.Lock()
	us.final = outcome.Allocation.Clone()
	us.mu.Unlock()

	f.untrack(outcome.Seat.Handle())

	if outcome.Failure != nil {
		_ = us.offerKit.Reject(outcome.Failure)
	}

	ctx = context.WithoutCancel(ctx)

	future.Go(ctx, f.logger, "payout", func(ctx context.Context) (Payouts, error) {
		payouts, err := f.svc.payout(ctx, outcome.Allocation)
		if err != nil {
			us.keepUnclaimed(err)
		}

		_ = us.payoutKit.Settle(payouts, err)

		return payouts, err
	})
}

// payout withdraws every non-empty amount of alloc from the pool. It is all
// or nothing: when one withdrawal fails the others are deposited back and a
// *PayoutError is returned.
func (s *Service) payout(ctx context.Context, alloc amount.Allocation) (Payouts, error) {
	ctx, span := s.tracer.Start(ctx, "escrow.payout")
	defer span.End()

	started := time.Now()

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLogger(s.logger)
	grp.SetLimit(s.payoutConcurrency)

	var mu sync.Mutex

	out := make(Payouts, len(alloc))

	for _, kw := range alloc.Keywords() {
		a := alloc[kw]

		grp.Go(func() error {
			m, err := s.registry.MathFor(a.Brand)
			if err != nil {
				return err
			}

			empty, err := m.IsEmpty(a)
			if err != nil || empty {
				return err
			}

			p, err := s.Purse(a.Brand)
			if err != nil {
				return err
			}

			pay, err := p.Withdraw(gctx, a)
			if err != nil {
				return err
			}

			mu.Lock()
			out[kw] = pay
			mu.Unlock()

			return nil
		})
	}

	err := grp.Wait()

	_ = s.metrics.RecordPayoutLatency(ctx, time.Since(started).Milliseconds())

	if err != nil {
		opentelemetry.HandleSpanError(span, "payout failed", err)
		s.logger.Log(ctx, log.LevelError, "payout failed", log.Err(err))

		return nil, s.compensate(ctx, alloc, out, err)
	}

	return out, nil
}

// compensate deposits withdrawn back into the pool after a failed payout of
// alloc.
func (s *Service) compensate(ctx context.Context, alloc amount.Allocation, withdrawn Payouts, cause error) *PayoutError {
	perr := &PayoutError{Err: cause, Payouts: Payouts{}, Unclaimed: amount.Allocation{}}

	for _, kw := range alloc.Keywords() {
		pay, ok := withdrawn[kw]
		if !ok {
			perr.Unclaimed[kw] = alloc[kw]
			continue
		}

		p, err := s.Purse(pay.Amount.Brand)
		if err == nil {
			_, err = p.Deposit(ctx, pay)
		}

		if err != nil {
			s.logger.Log(ctx, log.LevelError, "withdrawn payment could not be returned to the pool",
				log.String("keyword", kw), log.Err(err))

			perr.Payouts[kw] = pay

			continue
		}

		perr.Unclaimed[kw] = alloc[kw]
	}

	return perr
}

func (f *Facet) untrack(h seat.Handle) {
	f.mu.Lock()
	delete(f.admins, h)
	f.mu.Unlock()
}

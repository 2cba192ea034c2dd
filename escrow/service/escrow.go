package service

import (
	"context"
	"errors"

	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
)

// Deposit escrows payments in the pool and credits them to s, a seat of this
// facet, on top of what it already holds. It returns the credited amounts.
// Nothing stays escrowed when the seat cannot accept the credit: payments
// already deposited are withdrawn again and returned in a *PayoutError.
func (f *Facet) Deposit(ctx context.Context, s *seat.Seat, payments map[string]purse.Payment) (amount.Allocation, error) {
	admin, err := f.admin(s)
	if err != nil {
		return nil, err
	}

	credited := amount.Allocation{}

	for _, kw := range sortedKeys(payments) {
		pay := payments[kw]

		bank, err := f.svc.Purse(pay.Amount.Brand)
		if err != nil {
			return nil, f.svc.refund(ctx, credited, err)
		}

		a, err := bank.Deposit(ctx, pay)
		if err != nil {
			return nil, f.svc.refund(ctx, credited, err)
		}

		credited[kw] = a
	}

	if err := f.adjust(ctx, s, admin, credited, add); err != nil {
		return nil, f.svc.refund(ctx, credited, err)
	}

	return credited, nil
}

// Withdraw debits amounts from s, a seat of this facet, and pays them out
// of the pool. When the payout fails, the amounts still in the pool are
// credited back to s and a *PayoutError is returned.
func (f *Facet) Withdraw(ctx context.Context, s *seat.Seat, amounts amount.Allocation) (Payouts, error) {
	admin, err := f.admin(s)
	if err != nil {
		return nil, err
	}

	if err := f.adjust(ctx, s, admin, amounts, subtract); err != nil {
		return nil, err
	}

	payouts, err := f.svc.payout(ctx, amounts)
	if err == nil {
		return payouts, nil
	}

	var perr *PayoutError
	if !errors.As(err, &perr) {
		return nil, err
	}

	if undo := f.adjust(ctx, s, admin, perr.Unclaimed, add); undo != nil {
		f.logger.Log(ctx, log.LevelError, "withdrawn amounts could not be restored to seat",
			log.Seat(string(s.Handle())), log.Err(undo))

		return nil, perr
	}

	perr.Unclaimed = amount.Allocation{}

	return nil, perr
}

// adjust stages op(current, delta) on s and commits it through admin.
func (f *Facet) adjust(
	ctx context.Context,
	s *seat.Seat,
	admin *seat.Admin,
	delta amount.Allocation,
	op func(amount.Lookup, amount.Allocation, amount.Allocation) (amount.Allocation, error),
) error {
	current, err := s.CurrentAllocation()
	if err != nil {
		return err
	}

	next, err := op(f.svc.registry, current, delta)
	if err != nil {
		return err
	}

	staging, err := s.Stage(ctx, next)
	if err != nil {
		return err
	}

	return admin.Commit(ctx, staging)
}

func sortedKeys(payments map[string]purse.Payment) []string {
	alloc := make(amount.Allocation, len(payments))
	for kw, p := range payments {
		alloc[kw] = p.Amount
	}

	return alloc.Keywords()
}

//go:build unit

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

// brokenPurse is an in-memory purse whose operations fail on demand.
type brokenPurse struct {
	*purse.Memory
	failDeposit  atomic.Bool
	failWithdraw atomic.Bool
}

func (p *brokenPurse) Deposit(ctx context.Context, pay purse.Payment) (amount.Amount, error) {
	if p.failDeposit.Load() {
		return amount.Amount{}, errBackend
	}

	return p.Memory.Deposit(ctx, pay)
}

func (p *brokenPurse) Withdraw(ctx context.Context, a amount.Amount) (purse.Payment, error) {
	if p.failWithdraw.Load() {
		return purse.Payment{}, errBackend
	}

	return p.Memory.Withdraw(ctx, a)
}

// newBrokenService returns a service whose pooled purses can be broken per
// brand.
func newBrokenService(t *testing.T) (*Service, map[amount.Brand]*brokenPurse) {
	t.Helper()

	purses := make(map[amount.Brand]*brokenPurse)

	svc := newService(t, WithPurseFactory(func(m amount.Math) (purse.Purse, error) {
		p := &brokenPurse{Memory: purse.NewMemory(m)}
		purses[m.Brand()] = p

		return p, nil
	}))

	return svc, purses
}

func fundingPayments() map[string]purse.Payment {
	return map[string]purse.Payment{
		"A": purse.NewPayment(amount.Nat(moola, 7)),
		"B": purse.NewPayment(amount.Nat(simolean, 1)),
	}
}

// outside totals per brand the value of payments held outside the pool.
func outside(t *testing.T, payouts ...Payouts) map[amount.Brand]int64 {
	t.Helper()

	out := map[amount.Brand]int64{}

	for _, ps := range payouts {
		for _, p := range ps {
			out[p.Amount.Brand] += natOf(t, p.Amount)
		}
	}

	return out
}

func TestPayout_ConservesValueWhenPurseFails(t *testing.T) {
	t.Parallel()

	minted := map[amount.Brand]int64{moola: 7, simolean: 1}

	tests := []struct {
		name string
		// run performs the failing operation and returns every payment the
		// caller ends up holding.
		run func(t *testing.T, ctx context.Context, f *Facet, s *seat.Seat, us *UserSeat, purses map[amount.Brand]*brokenPurse) map[amount.Brand]int64
	}{
		{
			name: "exit keeps the allocation escrowed until claimed",
			run: func(t *testing.T, ctx context.Context, f *Facet, s *seat.Seat, us *UserSeat, purses map[amount.Brand]*brokenPurse) map[amount.Brand]int64 {
				_, err := f.Deposit(ctx, s, fundingPayments())
				require.NoError(t, err)

				purses[simolean].failWithdraw.Store(true)
				require.NoError(t, s.Exit(ctx, nil))

				_, err = us.Payouts().Await(ctx)
				require.ErrorIs(t, err, errBackend)

				var perr *PayoutError
				require.ErrorAs(t, err, &perr)
				assert.Empty(t, perr.Payouts)

				unclaimed := us.Unclaimed()
				assert.Equal(t, int64(7), natOf(t, unclaimed["A"]))
				assert.Equal(t, int64(1), natOf(t, unclaimed["B"]))

				purses[simolean].failWithdraw.Store(false)

				claimed, err := us.ClaimPayouts(ctx)
				require.NoError(t, err)
				assert.Empty(t, us.Unclaimed())

				return outside(t, claimed)
			},
		},
		{
			name: "withdraw credits the seat back",
			run: func(t *testing.T, ctx context.Context, f *Facet, s *seat.Seat, _ *UserSeat, purses map[amount.Brand]*brokenPurse) map[amount.Brand]int64 {
				_, err := f.Deposit(ctx, s, fundingPayments())
				require.NoError(t, err)

				purses[simolean].failWithdraw.Store(true)

				_, err = f.Withdraw(ctx, s, amount.Allocation{"A": amount.Nat(moola, 7), "B": amount.Nat(simolean, 1)})
				require.ErrorIs(t, err, errBackend)

				var perr *PayoutError
				require.ErrorAs(t, err, &perr)
				assert.Empty(t, perr.Unclaimed)

				alloc, err := s.CurrentAllocation()
				require.NoError(t, err)
				assert.Equal(t, int64(7), natOf(t, alloc["A"]))
				assert.Equal(t, int64(1), natOf(t, alloc["B"]))

				return outside(t, perr.Payouts)
			},
		},
		{
			name: "deposit refunds what it escrowed",
			run: func(t *testing.T, ctx context.Context, f *Facet, s *seat.Seat, _ *UserSeat, purses map[amount.Brand]*brokenPurse) map[amount.Brand]int64 {
				payments := fundingPayments()
				purses[simolean].failDeposit.Store(true)

				_, err := f.Deposit(ctx, s, payments)
				require.ErrorIs(t, err, errBackend)

				var perr *PayoutError
				require.ErrorAs(t, err, &perr)
				require.Contains(t, perr.Payouts, "A")
				assert.Equal(t, int64(7), natOf(t, perr.Payouts["A"].Amount))

				alloc, err := s.CurrentAllocation()
				require.NoError(t, err)
				assert.Empty(t, alloc)

				// The simolean payment never reached the pool.
				return outside(t, perr.Payouts, Payouts{"B": payments["B"]})
			},
		},
		{
			name: "payments that cannot be put back reach the caller",
			run: func(t *testing.T, ctx context.Context, f *Facet, s *seat.Seat, us *UserSeat, purses map[amount.Brand]*brokenPurse) map[amount.Brand]int64 {
				_, err := f.Deposit(ctx, s, fundingPayments())
				require.NoError(t, err)

				purses[simolean].failWithdraw.Store(true)
				purses[moola].failDeposit.Store(true)
				require.NoError(t, s.Exit(ctx, nil))

				_, err = us.Payouts().Await(ctx)

				var perr *PayoutError
				require.ErrorAs(t, err, &perr)
				assert.Contains(t, perr.Unclaimed, "B")

				return outside(t, perr.Payouts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := testCtx(t)
			svc, purses := newBrokenService(t)
			f := startEcho(t, svc)

			s, us, err := f.MakeEmptySeatKit(offer.EmptyProposal())
			require.NoError(t, err)

			held := tt.run(t, ctx, f, s, us, purses)

			for brand, total := range minted {
				assert.Equal(t, total, balance(t, svc, brand)+held[brand], "value of %s is conserved", brand)
			}
		})
	}
}

func TestOffer_DepositFailureReturnsRefund(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	svc, purses := newBrokenService(t)
	f := startEcho(t, svc)

	inv, err := f.MakeInvitation("buy", echo)
	require.NoError(t, err)

	proposal := offer.Proposal{
		Give: amount.Allocation{"A": amount.Nat(moola, 7), "B": amount.Nat(simolean, 1)},
	}

	purses[simolean].failDeposit.Store(true)

	_, err = svc.Offer(ctx, inv, proposal, fundingPayments()).Await(ctx)
	require.ErrorIs(t, err, errBackend)

	var perr *PayoutError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, int64(7), natOf(t, perr.Payouts["A"].Amount))
	assert.Equal(t, int64(0), balance(t, svc, moola))
}

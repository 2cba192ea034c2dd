//go:build unit

package seat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	moola    amount.Brand = "Moola"
	simolean amount.Brand = "Simolean"
	tickets  amount.Brand = "Ticket"
)

func newInstance(t *testing.T, opts ...Option) *Instance {
	t.Helper()

	reg, err := amount.NewRegistry(amount.NewNatMath(moola), amount.NewNatMath(simolean), amount.NewSetMath(tickets))
	require.NoError(t, err)

	inst, err := NewInstance(reg, opts...)
	require.NoError(t, err)

	return inst
}

func nat(t *testing.T, alloc amount.Allocation, keyword string) int64 {
	t.Helper()

	a, ok := alloc[keyword]
	if !ok {
		return 0
	}

	v, ok := a.Value.(decimal.Decimal)
	require.True(t, ok, "keyword %s is not a nat amount", keyword)

	return v.IntPart()
}

// giveWant builds a seat giving give of moola under "Price" and wanting want
// simoleans under "Goods".
func giveWant(t *testing.T, inst *Instance, give, want int64) (*Seat, *Admin) {
	t.Helper()

	p := offer.Proposal{
		Give: amount.Allocation{"Price": amount.Nat(moola, give)},
		Want: amount.Allocation{"Goods": amount.Nat(simolean, want)},
	}

	s, a, err := inst.NewSeatKit(p, amount.Allocation{"Price": amount.Nat(moola, give)}, nil)
	require.NoError(t, err)

	return s, a
}

func seller(t *testing.T, inst *Instance, goods, price int64) *Seat {
	t.Helper()

	p := offer.Proposal{
		Give: amount.Allocation{"Goods": amount.Nat(simolean, goods)},
		Want: amount.Allocation{"Price": amount.Nat(moola, price)},
	}

	s, _, err := inst.NewSeatKit(p, amount.Allocation{"Goods": amount.Nat(simolean, goods)}, nil)
	require.NoError(t, err)

	return s
}

func TestNewInstance_RequiresLookup(t *testing.T) {
	t.Parallel()

	_, err := NewInstance(nil)
	require.ErrorIs(t, err, escrow.ErrInvalidInput)
}

func TestStage_OfferSafety(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name      string
		candidate amount.Allocation
		wantErr   error
	}{
		{
			name:      "refund keeps give",
			candidate: amount.Allocation{},
		},
		{
			name:      "want satisfied with give spent",
			candidate: amount.Allocation{"Price": amount.Nat(moola, 0), "Goods": amount.Nat(simolean, 2)},
		},
		{
			name:      "partial give without want",
			candidate: amount.Allocation{"Price": amount.Nat(moola, 1), "Goods": amount.Nat(simolean, 1)},
			wantErr:   escrow.ErrOfferSafetyViolation,
		},
		{
			name:      "unknown brand",
			candidate: amount.Allocation{"Goods": {Brand: "Nope", Value: decimal.NewFromInt(1)}},
			wantErr:   escrow.ErrUnknownBrand,
		},
		{
			name:      "bad keyword",
			candidate: amount.Allocation{"goods": amount.Nat(simolean, 2)},
			wantErr:   escrow.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inst := newInstance(t)
			s, _ := giveWant(t, inst, 3, 2)

			st, err := s.Stage(ctx, tt.candidate)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, st)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, st)

			current, err := s.CurrentAllocation()
			require.NoError(t, err)
			assert.Equal(t, int64(3), nat(t, current, "Price"), "stage must not mutate the committed allocation")
		})
	}
}

func TestIsOfferSafe_DoesNotMutate(t *testing.T) {
	t.Parallel()

	inst := newInstance(t)
	s, _ := giveWant(t, inst, 3, 2)

	ok, err := s.IsOfferSafe(amount.Allocation{"Price": amount.Nat(moola, 0)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsOfferSafe(amount.Allocation{"Goods": amount.Nat(simolean, 5)})
	require.NoError(t, err)
	assert.True(t, ok)

	current, err := s.CurrentAllocation()
	require.NoError(t, err)
	assert.NotContains(t, current, "Goods")
}

func TestReallocate_CommitsTrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	buyer, _ := giveWant(t, inst, 3, 2)
	sell := seller(t, inst, 2, 3)

	stBuyer, err := buyer.Stage(ctx, amount.Allocation{"Price": amount.Nat(moola, 0), "Goods": amount.Nat(simolean, 2)})
	require.NoError(t, err)

	stSeller, err := sell.Stage(ctx, amount.Allocation{"Goods": amount.Nat(simolean, 0), "Price": amount.Nat(moola, 3)})
	require.NoError(t, err)

	require.NoError(t, inst.Reallocate(ctx, stSeller, stBuyer))

	b, err := buyer.CurrentAllocation()
	require.NoError(t, err)
	assert.Equal(t, int64(0), nat(t, b, "Price"))
	assert.Equal(t, int64(2), nat(t, b, "Goods"))

	s, err := sell.CurrentAllocation()
	require.NoError(t, err)
	assert.Equal(t, int64(3), nat(t, s, "Price"))
	assert.Equal(t, int64(0), nat(t, s, "Goods"))
}

func TestReallocate_RejectsWholeBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("conservation", func(t *testing.T) {
		t.Parallel()

		inst := newInstance(t)
		buyer, _ := giveWant(t, inst, 3, 2)
		sell := seller(t, inst, 2, 3)

		stBuyer, err := buyer.Stage(ctx, amount.Allocation{"Price": amount.Nat(moola, 0), "Goods": amount.Nat(simolean, 2)})
		require.NoError(t, err)

		// Seller keeps its goods and also gets paid: simoleans are minted.
		stSeller, err := sell.Stage(ctx, amount.Allocation{"Price": amount.Nat(moola, 3)})
		require.NoError(t, err)

		err = inst.Reallocate(ctx, stBuyer, stSeller)
		require.ErrorIs(t, err, escrow.ErrConservationViolation)

		b, err := buyer.CurrentAllocation()
		require.NoError(t, err)
		assert.Equal(t, int64(3), nat(t, b, "Price"))

		// Stagings stay outstanding after a rejected batch.
		inst.mu.Lock()
		assert.Len(t, inst.stagings, 2)
		inst.mu.Unlock()
	})

	t.Run("duplicate seat", func(t *testing.T) {
		t.Parallel()

		inst := newInstance(t)
		buyer, _ := giveWant(t, inst, 3, 2)

		st1, err := buyer.Stage(ctx, amount.Allocation{})
		require.NoError(t, err)

		st2, err := buyer.Stage(ctx, amount.Allocation{})
		require.NoError(t, err)

		require.ErrorIs(t, inst.Reallocate(ctx, st1, st2), escrow.ErrInvalidInput)
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		inst := newInstance(t)
		require.ErrorIs(t, inst.Reallocate(ctx), escrow.ErrInvalidInput)
	})

	t.Run("nil instance", func(t *testing.T) {
		t.Parallel()

		var inst *Instance
		require.ErrorIs(t, inst.Reallocate(ctx), escrow.ErrNilInstance)
	})
}

func TestReallocate_UnrecognizedStagings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("forged", func(t *testing.T) {
		t.Parallel()

		inst := newInstance(t)
		require.ErrorIs(t, inst.Reallocate(ctx, &Staging{}), escrow.ErrUnrecognizedStaging)
		require.ErrorIs(t, inst.Reallocate(ctx, nil), escrow.ErrUnrecognizedStaging)
	})

	t.Run("other instance", func(t *testing.T) {
		t.Parallel()

		inst := newInstance(t)
		other := newInstance(t)
		s, _ := giveWant(t, other, 3, 2)

		st, err := s.Stage(ctx, amount.Allocation{})
		require.NoError(t, err)

		require.ErrorIs(t, inst.Reallocate(ctx, st), escrow.ErrUnrecognizedStaging)
		require.NoError(t, other.Reallocate(ctx, st))
	})

	t.Run("single use", func(t *testing.T) {
		t.Parallel()

		inst := newInstance(t)
		s, _ := giveWant(t, inst, 3, 2)

		st, err := s.Stage(ctx, amount.Allocation{})
		require.NoError(t, err)

		require.NoError(t, inst.Reallocate(ctx, st))
		require.ErrorIs(t, inst.Reallocate(ctx, st), escrow.ErrUnrecognizedStaging)
	})
}

func TestAdminCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	s, admin := giveWant(t, inst, 3, 2)
	other, otherAdmin := giveWant(t, inst, 1, 1)

	st, err := s.Stage(ctx, amount.Allocation{"Price": amount.Nat(moola, 3)})
	require.NoError(t, err)

	require.ErrorIs(t, otherAdmin.Commit(ctx, st), escrow.ErrUnrecognizedStaging)
	require.NoError(t, admin.Commit(ctx, st))
	require.ErrorIs(t, admin.Commit(ctx, st), escrow.ErrUnrecognizedStaging)

	stOther, err := other.Stage(ctx, amount.Allocation{})
	require.NoError(t, err)
	require.NoError(t, other.Exit(ctx, nil))
	require.ErrorIs(t, otherAdmin.Commit(ctx, stOther), escrow.ErrSeatExited)
}

func TestStagingDiscard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	s, admin := giveWant(t, inst, 3, 2)

	st, err := s.Stage(ctx, amount.Allocation{"Goods": amount.Nat(simolean, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, inst.Outstanding())

	st.Discard()
	assert.Zero(t, inst.Outstanding())
	require.ErrorIs(t, admin.Commit(ctx, st), escrow.ErrUnrecognizedStaging)

	st.Discard()
	(*Staging)(nil).Discard()
	assert.Zero(t, inst.Outstanding())
}

func TestExitFinality(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	s, admin := giveWant(t, inst, 3, 2)

	pending, err := s.Stage(ctx, amount.Allocation{})
	require.NoError(t, err)

	require.NoError(t, s.Exit(ctx, "done"))
	assert.True(t, s.HasExited())

	_, err = s.Stage(ctx, amount.Allocation{})
	require.ErrorIs(t, err, escrow.ErrSeatExited)

	_, err = s.CurrentAllocation()
	require.ErrorIs(t, err, escrow.ErrSeatExited)

	_, err = s.AmountAllocated("Price", moola)
	require.ErrorIs(t, err, escrow.ErrSeatExited)

	_, err = s.IsOfferSafe(amount.Allocation{})
	require.ErrorIs(t, err, escrow.ErrSeatExited)

	require.ErrorIs(t, admin.Commit(ctx, pending), escrow.ErrSeatExited)
	require.ErrorIs(t, inst.Reallocate(ctx, pending), escrow.ErrSeatExited)
	require.ErrorIs(t, s.Exit(ctx, nil), escrow.ErrSeatExited)
	require.ErrorIs(t, admin.UpdateHasExited(), escrow.ErrSeatExited)
	require.ErrorIs(t, admin.UpdateProposal(offer.EmptyProposal()), escrow.ErrSeatExited)
}

func TestFail_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)

	var (
		mu       sync.Mutex
		outcomes []Outcome
	)

	settler := SettlerFunc(func(_ context.Context, o Outcome) {
		mu.Lock()
		defer mu.Unlock()

		outcomes = append(outcomes, o)
	})

	s, _, err := inst.NewSeatKit(offer.EmptyProposal(), amount.Allocation{"Stake": amount.Nat(moola, 4)}, settler)
	require.NoError(t, err)

	first := errors.New("liquidated")

	assert.Equal(t, first, s.Fail(ctx, first))
	assert.Equal(t, first, s.Fail(ctx, errors.New("again")))
	assert.Equal(t, first, s.Failure())

	mu.Lock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, first, outcomes[0].Failure)
	assert.Equal(t, int64(4), nat(t, outcomes[0].Allocation, "Stake"))
	mu.Unlock()

	_, err = s.Notifier().Latest()
	require.ErrorIs(t, err, first)
}

func TestFail_DefaultReason(t *testing.T) {
	t.Parallel()

	inst := newInstance(t)
	s, _, err := inst.MakeNoEscrowSeat(offer.EmptyProposal(), nil)
	require.NoError(t, err)

	reason := s.Fail(context.Background(), nil)
	require.ErrorIs(t, reason, ErrDefaultFailure)
	assert.Equal(t, DefaultFailureReason, reason.Error())
}

func TestFail_AfterExitReturnsGivenReason(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	s, _ := giveWant(t, inst, 1, 1)

	require.NoError(t, s.Exit(ctx, nil))

	reason := errors.New("late")
	assert.Equal(t, reason, s.Fail(ctx, reason))
	assert.NoError(t, s.Failure())
}

func TestAmountAllocated(t *testing.T) {
	t.Parallel()

	inst := newInstance(t)
	s, _ := giveWant(t, inst, 3, 2)

	a, err := s.AmountAllocated("Price", moola)
	require.NoError(t, err)
	assert.Equal(t, "3 Moola", a.String())

	a, err = s.AmountAllocated("Price", "")
	require.NoError(t, err)
	assert.Equal(t, moola, a.Brand)

	a, err = s.AmountAllocated("Goods", simolean)
	require.NoError(t, err)
	assert.Equal(t, "0 Simolean", a.String())

	_, err = s.AmountAllocated("Goods", "")
	require.ErrorIs(t, err, escrow.ErrInvalidInput)

	_, err = s.AmountAllocated("Price", simolean)
	require.ErrorIs(t, err, escrow.ErrBrandMismatch)
}

func TestStaleStaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Two drafts for the same seat: one moves the ticket out, the other
	// rewrites the Price keyword only. Without revalidation the second draft
	// still carries the ticket from when it was staged.
	run := func(t *testing.T, revalidate bool) (*Instance, *Seat, *Seat, *Staging) {
		t.Helper()

		inst := newInstance(t, WithRevalidateOnCommit(revalidate))

		p := offer.Proposal{
			Give: amount.Allocation{"Pass": amount.Set(tickets, "t1")},
			Want: amount.Allocation{"Price": amount.Nat(moola, 5)},
		}

		holder, _, err := inst.NewSeatKit(p, amount.Allocation{"Pass": amount.Set(tickets, "t1")}, nil)
		require.NoError(t, err)

		buyerP := offer.Proposal{
			Give: amount.Allocation{"Price": amount.Nat(moola, 5)},
			Want: amount.Allocation{"Pass": amount.Set(tickets, "t1")},
		}

		buyer, _, err := inst.NewSeatKit(buyerP, amount.Allocation{"Price": amount.Nat(moola, 5)}, nil)
		require.NoError(t, err)

		stale, err := holder.Stage(ctx, amount.Allocation{"Note": amount.Nat(moola, 0)})
		require.NoError(t, err)

		stHolder, err := holder.Stage(ctx, amount.Allocation{"Pass": amount.Set(tickets), "Price": amount.Nat(moola, 5)})
		require.NoError(t, err)

		stBuyer, err := buyer.Stage(ctx, amount.Allocation{"Pass": amount.Set(tickets, "t1"), "Price": amount.Nat(moola, 0)})
		require.NoError(t, err)

		require.NoError(t, inst.Reallocate(ctx, stHolder, stBuyer))

		return inst, holder, buyer, stale
	}

	t.Run("without revalidation the stale draft breaks conservation", func(t *testing.T) {
		t.Parallel()

		inst, _, _, stale := run(t, false)
		require.ErrorIs(t, inst.Reallocate(ctx, stale), escrow.ErrConservationViolation)
	})

	t.Run("with revalidation the draft applies as a delta", func(t *testing.T) {
		t.Parallel()

		inst, holder, _, stale := run(t, true)
		require.NoError(t, inst.Reallocate(ctx, stale))

		current, err := holder.CurrentAllocation()
		require.NoError(t, err)
		assert.Equal(t, int64(5), nat(t, current, "Price"))
		assert.Contains(t, current, "Note")
	})
}

func TestStaleStaging_RevalidationRejectsUnsafe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t, WithRevalidateOnCommit(true))

	buyer, _ := giveWant(t, inst, 3, 2)
	sell := seller(t, inst, 2, 3)
	fee, _, err := inst.MakeNoEscrowSeat(offer.EmptyProposal(), nil)
	require.NoError(t, err)

	// Staged while the buyer still held its payment: refund keeps it safe.
	stale, err := buyer.Stage(ctx, amount.Allocation{"Goods": amount.Nat(simolean, 1)})
	require.NoError(t, err)

	stBuyer, err := buyer.Stage(ctx, amount.Allocation{"Price": amount.Nat(moola, 0), "Goods": amount.Nat(simolean, 2)})
	require.NoError(t, err)

	stSeller, err := sell.Stage(ctx, amount.Allocation{"Goods": amount.Nat(simolean, 0), "Price": amount.Nat(moola, 3)})
	require.NoError(t, err)

	require.NoError(t, inst.Reallocate(ctx, stBuyer, stSeller))

	stFee, err := fee.Stage(ctx, amount.Allocation{"Fee": amount.Nat(simolean, 1)})
	require.NoError(t, err)

	// Against the live allocation the stale draft leaves the buyer with one
	// simolean and no moola.
	require.ErrorIs(t, inst.Reallocate(ctx, stale, stFee), escrow.ErrOfferSafetyViolation)
}

func TestNotifier_PublishesCommits(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inst := newInstance(t)
	s, _ := giveWant(t, inst, 3, 2)

	first, err := s.Notifier().GetUpdateSince(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), nat(t, first.Value, "Price"))

	st, err := s.Stage(ctx, amount.Allocation{"Price": amount.Nat(moola, 3), "Goods": amount.Nat(simolean, 0)})
	require.NoError(t, err)
	require.NoError(t, inst.Reallocate(ctx, st))

	next, err := s.Notifier().GetUpdateSince(ctx, first.Count)
	require.NoError(t, err)
	assert.Contains(t, next.Value, "Goods")
	assert.False(t, next.Done)

	require.NoError(t, s.Exit(ctx, nil))

	last, err := s.Notifier().GetUpdateSince(ctx, next.Count)
	require.NoError(t, err)
	assert.True(t, last.Done)
}

func TestNotifier_FollowsConcurrentCommits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	s, admin := giveWant(t, inst, 3, 2)

	const writers = 32

	var wg sync.WaitGroup

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			st, err := s.Stage(ctx, amount.Allocation{"Goods": amount.Nat(simolean, int64(i))})
			if !assert.NoError(t, err) {
				return
			}

			assert.NoError(t, admin.Commit(ctx, st))
		}()
	}

	wg.Wait()

	current, err := s.CurrentAllocation()
	require.NoError(t, err)

	latest, err := s.Notifier().Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(writers+1), latest.Count)
	assert.Equal(t, nat(t, current, "Goods"), nat(t, latest.Value, "Goods"), "the last commit is the last update")
}

func TestDeadlineExit(t *testing.T) {
	t.Parallel()

	inst := newInstance(t)
	done := make(chan Outcome, 1)

	p := offer.Proposal{Exit: offer.ExitRule{Kind: offer.ExitAfterDeadline, Deadline: time.Now().Add(20 * time.Millisecond)}}

	s, _, err := inst.NewSeatKit(p, amount.Allocation{"Stake": amount.Nat(moola, 1)}, SettlerFunc(func(_ context.Context, o Outcome) {
		done <- o
	}))
	require.NoError(t, err)

	select {
	case o := <-done:
		assert.NoError(t, o.Failure)
		assert.True(t, s.HasExited())
	case <-time.After(5 * time.Second):
		t.Fatal("seat did not exit at its deadline")
	}
}

func TestShutdownHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst := newInstance(t)
	a, _ := giveWant(t, inst, 1, 1)
	b, _ := giveWant(t, inst, 1, 1)

	require.NoError(t, a.Exit(ctx, nil))
	assert.Len(t, inst.LiveSeats(), 1)

	reason := errors.New("shutdown")
	inst.FailAll(ctx, reason)

	assert.Empty(t, inst.LiveSeats())
	assert.Equal(t, reason, b.Failure())
	assert.NoError(t, a.Failure())
}

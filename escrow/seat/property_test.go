//go:build unit

package seat

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/stretchr/testify/require"
)

var propertyBrands = map[string]amount.Brand{"M": moola, "S": simolean}

func randomSeat(t *testing.T, rng *rand.Rand, inst *Instance) *Seat {
	t.Helper()

	give, want := "M", "S"
	if rng.IntN(2) == 0 {
		give, want = want, give
	}

	g := rng.Int64N(5)
	p := offer.Proposal{
		Give: amount.Allocation{give: amount.Nat(propertyBrands[give], g)},
		Want: amount.Allocation{want: amount.Nat(propertyBrands[want], rng.Int64N(5))},
	}

	initial := amount.Allocation{
		give: amount.Nat(propertyBrands[give], g+rng.Int64N(5)),
		want: amount.Nat(propertyBrands[want], rng.Int64N(5)),
	}

	s, _, err := inst.NewSeatKit(p, initial, nil)
	require.NoError(t, err)

	return s
}

func totals(t *testing.T, seats []*Seat) map[string]int64 {
	t.Helper()

	out := map[string]int64{}

	for _, s := range seats {
		alloc, err := s.CurrentAllocation()
		require.NoError(t, err)

		for kw := range propertyBrands {
			out[kw] += nat(t, alloc, kw)
		}
	}

	return out
}

// Random transfers between seats never change per-brand totals and never
// leave a seat in an unsafe allocation.
func TestReallocate_ConservesUnderRandomBatches(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31))
		ctx := context.Background()
		inst := newInstance(t)

		seats := make([]*Seat, 4)
		for i := range seats {
			seats[i] = randomSeat(t, rng, inst)
		}

		want := totals(t, seats)

		for step := 0; step < 50; step++ {
			i, j := rng.IntN(len(seats)), rng.IntN(len(seats))
			if i == j {
				continue
			}

			kw := "M"
			if rng.IntN(2) == 0 {
				kw = "S"
			}

			from, err := seats[i].CurrentAllocation()
			require.NoError(t, err)

			to, err := seats[j].CurrentAllocation()
			require.NoError(t, err)

			qty := rng.Int64N(4)
			if nat(t, from, kw) < qty {
				continue
			}

			leak := int64(0)
			if rng.IntN(5) == 0 {
				leak = 1
			}

			brand := propertyBrands[kw]
			candidates := []amount.Allocation{
				{kw: amount.Nat(brand, nat(t, from, kw)-qty)},
				{kw: amount.Nat(brand, nat(t, to, kw)+qty+leak)},
			}

			var stagings []*Staging

			for k, s := range []*Seat{seats[i], seats[j]} {
				current, err := s.CurrentAllocation()
				require.NoError(t, err)

				safe, err := offer.IsSafe(inst.Lookup(), s.Proposal(), amount.Merge(current, candidates[k]))
				require.NoError(t, err)

				st, err := s.Stage(ctx, candidates[k])
				if !safe {
					require.ErrorIs(t, err, escrow.ErrOfferSafetyViolation, "seed %d step %d", seed, step)
					require.Nil(t, st)

					continue
				}

				require.NoError(t, err, "seed %d step %d", seed, step)
				stagings = append(stagings, st)
			}

			if len(stagings) != 2 {
				continue
			}

			err = inst.Reallocate(ctx, stagings...)
			if leak > 0 {
				require.ErrorIs(t, err, escrow.ErrConservationViolation, "seed %d step %d", seed, step)
			} else {
				require.NoError(t, err, "seed %d step %d", seed, step)
			}

			require.Equal(t, want, totals(t, seats), "seed %d step %d", seed, step)

			for _, s := range seats {
				ok, err := s.IsOfferSafe(amount.Allocation{})
				require.NoError(t, err)
				require.True(t, ok, "seed %d step %d", seed, step)
			}
		}
	}
}

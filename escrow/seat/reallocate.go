package seat

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/assert"
	constant "github.com/LerianStudio/lib-escrow/escrow/constants"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Reallocate commits stagings as one atomic batch. The batch is rejected,
// with nothing changed, when a staging is unknown to this instance, when two
// stagings target the same seat, when a seat has exited, or when the
// per-brand totals of the staged allocations differ from the committed
// allocations of the participating seats. Order inside the batch does not
// matter.
func (inst *Instance) Reallocate(ctx context.Context, stagings ...*Staging) error {
	if inst == nil {
		return escrow.ErrNilInstance
	}

	ctx, span := inst.tracer.Start(ctx, "escrow.reallocate")
	defer span.End()

	span.SetAttributes(
		attribute.String(constant.AttrInstanceID, inst.id),
		attribute.Int("escrow.stagings", len(stagings)),
	)

	committed, err := inst.reallocate(ctx, stagings)
	if err != nil {
		reason := string(escrow.CodeOf(err))
		if reason == "" {
			reason = "internal"
		}

		_ = inst.metrics.RecordReallocation(ctx, inst.id, reason)

		opentelemetry.HandleSpanBusinessErrorEvent(span, constant.EventReallocationFailed, err)
		inst.logger.Log(ctx, log.LevelInfo, "reallocation rejected", log.Instance(inst.id), log.Err(err))

		return err
	}

	_ = inst.metrics.RecordReallocation(ctx, inst.id, "")

	for _, c := range committed {
		if c.published != nil {
			inst.logger.Log(ctx, log.LevelWarn, "seat notifier rejected update", log.Seat(string(c.r.handle)), log.Err(c.published))
		}
	}

	inst.logger.Log(ctx, log.LevelDebug, "reallocation committed", log.Instance(inst.id), log.Int("seats", len(committed)))

	return nil
}

type commit struct {
	r         *record
	st        *Staging
	next      amount.Allocation
	published error
}

func (inst *Instance) reallocate(ctx context.Context, stagings []*Staging) ([]commit, error) {
	if len(stagings) == 0 {
		return nil, escrow.InvalidInput("stagings", "at least one staging is required")
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	batch := make([]commit, 0, len(stagings))
	seen := make(map[*record]struct{}, len(stagings))

	for _, st := range stagings {
		if st == nil || st.inst != inst {
			return nil, escrow.UnrecognizedStaging("staging does not belong to instance " + inst.id)
		}

		if st.seat != nil && st.seat.exited {
			return nil, escrow.SeatExited("reallocate")
		}

		if !inst.recognizedLocked(st) {
			return nil, escrow.UnrecognizedStaging("staging " + string(st.handle) + " is not outstanding")
		}

		if _, dup := seen[st.seat]; dup {
			return nil, escrow.InvalidInput("stagings", "seat "+string(st.seat.handle)+" appears more than once")
		}

		seen[st.seat] = struct{}{}

		next, err := inst.resolveLocked(st)
		if err != nil {
			return nil, err
		}

		batch = append(batch, commit{r: st.seat, st: st, next: next})
	}

	before := make([]amount.Allocation, 0, len(batch))
	after := make([]amount.Allocation, 0, len(batch))

	for _, c := range batch {
		before = append(before, c.r.current)
		after = append(after, c.next)
	}

	if err := inst.checkConserved(before, after); err != nil {
		return nil, err
	}

	for i, c := range batch {
		c.r.current = c.next
		delete(inst.stagings, c.st.handle)

		// Published under the lock so observers see commits in commit order.
		batch[i].published = c.r.updater.Update(c.next.Clone())
	}

	asserter := assert.New(ctx, inst.logger, "seat", "reallocate").WithMetrics(inst.metrics)

	for _, c := range batch {
		_ = asserter.That(ctx, !c.r.exited, "committed seat must be live", "seat", string(c.r.handle))
	}

	return batch, nil
}

// checkConserved compares per-brand totals of two sets of allocations.
func (inst *Instance) checkConserved(before, after []amount.Allocation) error {
	totalsBefore, err := inst.totals(before)
	if err != nil {
		return err
	}

	totalsAfter, err := inst.totals(after)
	if err != nil {
		if errors.Is(err, escrow.ErrUnknownBrand) {
			return err
		}

		return fmt.Errorf("%w: %w", escrow.ConservationViolation("", "staged amounts cannot be totalled"), err)
	}

	brands := make(map[amount.Brand]struct{}, len(totalsBefore)+len(totalsAfter))
	for b := range totalsBefore {
		brands[b] = struct{}{}
	}

	for b := range totalsAfter {
		brands[b] = struct{}{}
	}

	for _, b := range slices.Sorted(maps.Keys(brands)) {
		m, err := inst.lookup.MathFor(b)
		if err != nil {
			return err
		}

		l, ok := totalsBefore[b]
		if !ok {
			l = m.GetEmpty()
		}

		r, ok := totalsAfter[b]
		if !ok {
			r = m.GetEmpty()
		}

		equal, err := m.IsEqual(l, r)
		if err != nil {
			return err
		}

		if !equal {
			return escrow.ConservationViolation(string(b), "total "+l.String()+" would become "+r.String())
		}
	}

	return nil
}

func (inst *Instance) totals(allocs []amount.Allocation) (map[amount.Brand]amount.Amount, error) {
	out := make(map[amount.Brand]amount.Amount)

	for _, alloc := range allocs {
		for _, a := range alloc {
			m, err := inst.lookup.MathFor(a.Brand)
			if err != nil {
				return nil, err
			}

			acc, ok := out[a.Brand]
			if !ok {
				acc = m.GetEmpty()
			}

			acc, err = m.Add(acc, a)
			if err != nil {
				return nil, err
			}

			out[a.Brand] = acc
		}
	}

	return out, nil
}

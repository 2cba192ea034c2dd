package seat

import (
	"context"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/google/uuid"
)

// StagingHandle identifies a staging in the arena of its instance.
type StagingHandle string

// Staging is an immutable allocation draft for one seat. It is valid while
// its handle is in the instance arena: commit removes it, and so does the
// seat exiting.
type Staging struct {
	handle     StagingHandle
	inst       *Instance
	seat       *record
	delta      amount.Allocation
	allocation amount.Allocation
}

// Handle returns the staging handle.
func (st *Staging) Handle() StagingHandle {
	return st.handle
}

// Seat returns the seat the staging belongs to, or nil for a zero Staging.
func (st *Staging) Seat() *Seat {
	if st.seat == nil {
		return nil
	}

	return st.seat.seat
}

// Allocation returns a copy of the staged allocation.
func (st *Staging) Allocation() amount.Allocation {
	return st.allocation.Clone()
}

// Stage merges candidate over the committed allocation and records the
// result as a staging when it is offer safe. The committed allocation is not
// changed.
func (s *Seat) Stage(ctx context.Context, candidate amount.Allocation) (*Staging, error) {
	r := s.r
	inst := r.inst

	for _, kw := range candidate.Keywords() {
		if err := offer.ValidateKeyword(kw); err != nil {
			return nil, err
		}
	}

	delta, err := amount.CoerceAllocation(inst.lookup, candidate)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()

	if r.exited {
		inst.mu.Unlock()
		return nil, escrow.SeatExited("stage")
	}

	merged := amount.Merge(r.current, delta)

	safe, err := offer.IsSafe(inst.lookup, r.proposal, merged)
	if err != nil {
		inst.mu.Unlock()
		return nil, err
	}

	if !safe {
		inst.mu.Unlock()

		inst.logger.Log(ctx, log.LevelInfo, "staging rejected",
			log.Instance(inst.id), log.Seat(string(r.handle)), log.String("reason", "offer safety"))

		return nil, escrow.OfferSafetyViolation(string(r.handle), "staged allocation satisfies neither give nor want")
	}

	st := &Staging{
		handle:     StagingHandle(uuid.NewString()),
		inst:       inst,
		seat:       r,
		delta:      delta,
		allocation: merged,
	}

	inst.stagings[st.handle] = st
	inst.mu.Unlock()

	_ = inst.metrics.RecordStagingCreated(ctx, inst.id)

	return st, nil
}

// Discard drops the staging from the arena without committing it. It has no
// effect on a staging that is no longer outstanding.
func (st *Staging) Discard() {
	if st == nil || st.inst == nil {
		return
	}

	inst := st.inst

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.recognizedLocked(st) {
		delete(inst.stagings, st.handle)
	}
}

// Outstanding returns the number of stagings neither committed nor discarded.
func (inst *Instance) Outstanding() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	return len(inst.stagings)
}

// recognizedLocked reports whether st is an outstanding staging of inst.
func (inst *Instance) recognizedLocked(st *Staging) bool {
	if st == nil || st.inst != inst || st.handle == "" {
		return false
	}

	known, ok := inst.stagings[st.handle]

	return ok && known == st
}

// resolveLocked returns the allocation committing st would produce. With
// revalidation on, the staged delta is merged over the live allocation and
// checked for offer safety again.
func (inst *Instance) resolveLocked(st *Staging) (amount.Allocation, error) {
	if !inst.revalidate {
		return st.allocation.Clone(), nil
	}

	r := st.seat
	next := amount.Merge(r.current, st.delta)

	safe, err := offer.IsSafe(inst.lookup, r.proposal, next)
	if err != nil {
		return nil, err
	}

	if !safe {
		return nil, escrow.OfferSafetyViolation(string(r.handle), "staging is stale against the committed allocation")
	}

	return next, nil
}

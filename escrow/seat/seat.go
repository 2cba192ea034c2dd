package seat

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/notifier"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
)

// DefaultFailureReason is used by Fail when no reason is given.
const DefaultFailureReason = "seat exited with failure, please check the log for more information"

// ErrDefaultFailure carries DefaultFailureReason.
var ErrDefaultFailure = errors.New(DefaultFailureReason)

// Handle identifies a seat within its instance.
type Handle string

// Outcome is delivered to a Settler once a seat has exited or failed.
type Outcome struct {
	Seat       *Seat
	Allocation amount.Allocation
	Completion any
	Failure    error
}

// Settler finalizes a seat after exit, typically by paying out its
// allocation from escrow.
type Settler interface {
	Settle(ctx context.Context, outcome Outcome)
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(ctx context.Context, outcome Outcome)

// Settle calls f.
func (f SettlerFunc) Settle(ctx context.Context, outcome Outcome) {
	f(ctx, outcome)
}

// record is the state shared by both facets. Every field below mu-guarded
// comments is read and written under inst.mu.
type record struct {
	inst     *Instance
	handle   Handle
	seat     *Seat
	admin    *Admin
	updater  *notifier.Updater[amount.Allocation]
	observer *notifier.Notifier[amount.Allocation]
	settler  Settler
	timer    *time.Timer

	// guarded by inst.mu
	proposal offer.Proposal
	current  amount.Allocation
	exited   bool
	failure  error
}

// Seat is the contract-facing facet of a participant.
type Seat struct {
	r *record
}

// Admin is the engine-facing facet of the same participant.
type Admin struct {
	r *record
}

// Handle returns the seat handle.
func (s *Seat) Handle() Handle {
	return s.r.handle
}

// Instance returns the instance that owns the seat.
func (s *Seat) Instance() *Instance {
	return s.r.inst
}

// Proposal returns a copy of the seat proposal.
func (s *Seat) Proposal() offer.Proposal {
	s.r.inst.mu.Lock()
	defer s.r.inst.mu.Unlock()

	return s.r.proposal.Clone()
}

// HasExited reports whether the seat has exited or failed.
func (s *Seat) HasExited() bool {
	s.r.inst.mu.Lock()
	defer s.r.inst.mu.Unlock()

	return s.r.exited
}

// Notifier returns the allocation observer of the seat. It publishes every
// committed allocation and ends when the seat exits or fails.
func (s *Seat) Notifier() *notifier.Notifier[amount.Allocation] {
	return s.r.observer
}

// CurrentAllocation returns a copy of the committed allocation.
func (s *Seat) CurrentAllocation() (amount.Allocation, error) {
	s.r.inst.mu.Lock()
	defer s.r.inst.mu.Unlock()

	if s.r.exited {
		return nil, escrow.SeatExited("getCurrentAllocation")
	}

	return s.r.current.Clone(), nil
}

// AmountAllocated returns the amount held under keyword. When the keyword is
// absent the empty amount of brand is returned, so brand is then required.
func (s *Seat) AmountAllocated(keyword string, brand amount.Brand) (amount.Amount, error) {
	s.r.inst.mu.Lock()
	defer s.r.inst.mu.Unlock()

	if s.r.exited {
		return amount.Amount{}, escrow.SeatExited("getAmountAllocated")
	}

	if a, ok := s.r.current[keyword]; ok {
		if brand != "" && a.Brand != brand {
			return amount.Amount{}, escrow.NewDomainError(escrow.ErrorBrandMismatch, keyword,
				"allocated brand "+string(a.Brand)+" differs from "+string(brand))
		}

		return a, nil
	}

	if brand == "" {
		return amount.Amount{}, escrow.InvalidInput("brand", "brand is required when keyword "+keyword+" has no allocation")
	}

	m, err := s.r.inst.lookup.MathFor(brand)
	if err != nil {
		return amount.Amount{}, err
	}

	return m.GetEmpty(), nil
}

// IsOfferSafe reports whether candidate merged over the committed allocation
// would be offer safe. Nothing is mutated.
func (s *Seat) IsOfferSafe(candidate amount.Allocation) (bool, error) {
	s.r.inst.mu.Lock()
	defer s.r.inst.mu.Unlock()

	if s.r.exited {
		return false, escrow.SeatExited("isOfferSafe")
	}

	return offer.IsSafe(s.r.inst.lookup, s.r.proposal, amount.Merge(s.r.current, candidate))
}

// Exit ends the seat and hands its allocation to the settler. It fails with
// SeatExited when the seat has already exited.
func (s *Seat) Exit(ctx context.Context, completion any) error {
	r := s.r

	r.inst.mu.Lock()

	if r.exited {
		r.inst.mu.Unlock()
		return escrow.SeatExited("exit")
	}

	final := r.markExitedLocked()
	published := r.updater.Finish(final.Clone())
	r.inst.mu.Unlock()

	if published != nil {
		r.inst.logger.Log(ctx, log.LevelWarn, "seat notifier already finished", log.Seat(string(r.handle)), log.Err(published))
	}

	_ = r.inst.metrics.RecordSeatExited(ctx, r.inst.id, "exited")

	r.settle(ctx, Outcome{Seat: s, Allocation: final, Completion: completion})

	return nil
}

// Fail ends the seat with reason. Calling it on an exited seat has no effect
// and returns the reason the seat first failed with, or reason when the seat
// exited normally. A nil reason means ErrDefaultFailure.
func (s *Seat) Fail(ctx context.Context, reason error) error {
	if reason == nil {
		reason = ErrDefaultFailure
	}

	r := s.r

	r.inst.mu.Lock()

	if r.exited {
		first := r.failure
		r.inst.mu.Unlock()

		if first != nil {
			return first
		}

		return reason
	}

	r.failure = reason
	final := r.markExitedLocked()
	published := r.updater.Fail(reason)
	r.inst.mu.Unlock()

	if published != nil {
		r.inst.logger.Log(ctx, log.LevelWarn, "seat notifier already finished", log.Seat(string(r.handle)), log.Err(published))
	}

	r.inst.logger.Log(ctx, log.LevelWarn, "seat failed", log.Instance(r.inst.id), log.Seat(string(r.handle)), log.Err(reason))

	_ = r.inst.metrics.RecordSeatExited(ctx, r.inst.id, "failed")

	r.settle(ctx, Outcome{Seat: s, Allocation: final, Failure: reason})

	return reason
}

// Failure returns the reason the seat failed with, or nil.
func (s *Seat) Failure() error {
	s.r.inst.mu.Lock()
	defer s.r.inst.mu.Unlock()

	return s.r.failure
}

// markExitedLocked flips the exit flag, drops the seat's outstanding
// stagings and returns its final allocation. Caller holds inst.mu.
func (r *record) markExitedLocked() amount.Allocation {
	r.exited = true

	if r.timer != nil {
		r.timer.Stop()
	}

	for h, st := range r.inst.stagings {
		if st.seat == r {
			delete(r.inst.stagings, h)
		}
	}

	return r.current.Clone()
}

func (r *record) settle(ctx context.Context, outcome Outcome) {
	if r.settler == nil {
		return
	}

	r.settler.Settle(ctx, outcome)
}

// Seat returns the contract facet of the same record.
func (a *Admin) Seat() *Seat {
	return a.r.seat
}

// Commit applies a single staging of this seat. It fails with SeatExited
// when the seat has exited and with UnrecognizedStaging when the staging is
// not an outstanding staging of this seat.
func (a *Admin) Commit(ctx context.Context, st *Staging) error {
	r := a.r
	inst := r.inst

	inst.mu.Lock()

	if r.exited {
		inst.mu.Unlock()
		return escrow.SeatExited("commit")
	}

	if st == nil || st.seat != r || !inst.recognizedLocked(st) {
		inst.mu.Unlock()
		return escrow.UnrecognizedStaging("staging is not an outstanding staging of seat " + string(r.handle))
	}

	next, err := inst.resolveLocked(st)
	if err != nil {
		inst.mu.Unlock()
		return err
	}

	r.current = next
	delete(inst.stagings, st.handle)

	// Published under the lock so observers see commits in commit order.
	published := r.updater.Update(next.Clone())
	inst.mu.Unlock()

	if published != nil {
		inst.logger.Log(ctx, log.LevelWarn, "seat notifier rejected update", log.Seat(string(r.handle)), log.Err(published))
	}

	return nil
}

// UpdateHasExited marks the seat exited without settling it. It fails when
// the seat has already exited.
func (a *Admin) UpdateHasExited() error {
	r := a.r

	r.inst.mu.Lock()
	defer r.inst.mu.Unlock()

	if r.exited {
		return escrow.SeatExited("updateHasExited")
	}

	r.markExitedLocked()

	return nil
}

// UpdateProposal replaces the proposal of a seat whose escrow was deferred.
func (a *Admin) UpdateProposal(p offer.Proposal) error {
	r := a.r

	cleaned, err := offer.Clean(r.inst.lookup, p)
	if err != nil {
		return err
	}

	r.inst.mu.Lock()
	defer r.inst.mu.Unlock()

	if r.exited {
		return escrow.SeatExited("updateProposal")
	}

	r.proposal = cleaned

	return nil
}

package seat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/notifier"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "escrow.seat"

// Instance owns the seats of one contract instance and the arena of stagings
// they produced. The zero value is not usable; call NewInstance.
type Instance struct {
	id         string
	lookup     amount.Lookup
	logger     log.Logger
	tracer     trace.Tracer
	metrics    *metrics.MetricsFactory
	revalidate bool

	mu       sync.Mutex
	seats    map[Handle]*record
	stagings map[StagingHandle]*Staging
}

// Option configures an Instance.
type Option func(*Instance)

// WithID overrides the generated instance id.
func WithID(id string) Option {
	return func(inst *Instance) {
		if id != "" {
			inst.id = id
		}
	}
}

// WithLogger sets the instance logger.
func WithLogger(logger log.Logger) Option {
	return func(inst *Instance) {
		inst.logger = log.OrNop(logger)
	}
}

// WithTracer sets the tracer used for reallocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(inst *Instance) {
		if tracer != nil {
			inst.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics factory for domain counters.
func WithMetrics(factory *metrics.MetricsFactory) Option {
	return func(inst *Instance) {
		if factory != nil {
			inst.metrics = factory
		}
	}
}

// WithRevalidateOnCommit re-evaluates offer safety against the live
// allocation when a staging is committed. A staging is then applied as a
// delta over the current allocation instead of replacing it wholesale.
func WithRevalidateOnCommit(enabled bool) Option {
	return func(inst *Instance) {
		inst.revalidate = enabled
	}
}

// NewInstance creates an empty instance resolving brands through lookup.
func NewInstance(lookup amount.Lookup, opts ...Option) (*Instance, error) {
	if lookup == nil {
		return nil, escrow.InvalidInput("lookup", "amount lookup is required")
	}

	inst := &Instance{
		id:       uuid.NewString(),
		lookup:   lookup,
		logger:   log.NewNop(),
		tracer:   otel.Tracer(tracerName),
		metrics:  metrics.NewNopFactory(),
		seats:    make(map[Handle]*record),
		stagings: make(map[StagingHandle]*Staging),
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst, nil
}

// ID returns the instance id.
func (inst *Instance) ID() string {
	return inst.id
}

// Lookup returns the amount math lookup of the instance.
func (inst *Instance) Lookup() amount.Lookup {
	return inst.lookup
}

// IsOfferSafe evaluates the offer-safety predicate with the instance maths.
func (inst *Instance) IsOfferSafe(p offer.Proposal, alloc amount.Allocation) (bool, error) {
	return offer.IsSafe(inst.lookup, p, alloc)
}

// NewSeatKit creates a seat whose allocation starts at initial. The proposal
// is cleaned and initial is coerced through the instance maths. settler is
// invoked once, after the seat exits or fails; it may be nil.
func (inst *Instance) NewSeatKit(proposal offer.Proposal, initial amount.Allocation, settler Settler) (*Seat, *Admin, error) {
	if inst == nil {
		return nil, nil, escrow.ErrNilInstance
	}

	cleaned, err := offer.Clean(inst.lookup, proposal)
	if err != nil {
		return nil, nil, err
	}

	for _, kw := range initial.Keywords() {
		if err := offer.ValidateKeyword(kw); err != nil {
			return nil, nil, err
		}
	}

	alloc, err := amount.CoerceAllocation(inst.lookup, initial)
	if err != nil {
		return nil, nil, err
	}

	updater, observer := notifier.NewKit(inst.logger, alloc.Clone())

	r := &record{
		inst:     inst,
		handle:   Handle(uuid.NewString()),
		proposal: cleaned,
		current:  alloc,
		updater:  updater,
		observer: observer,
		settler:  settler,
	}

	r.seat = &Seat{r: r}
	r.admin = &Admin{r: r}

	inst.mu.Lock()
	inst.seats[r.handle] = r
	inst.mu.Unlock()

	if cleaned.Exit.Kind == offer.ExitAfterDeadline {
		inst.scheduleDeadline(r, cleaned.Exit.Deadline)
	}

	inst.logger.Log(context.Background(), log.LevelDebug, "seat created",
		log.Instance(inst.id), log.Seat(string(r.handle)))

	return r.seat, r.admin, nil
}

// MakeNoEscrowSeat creates a seat with an empty allocation, used by contract
// code for bookkeeping seats such as fee collectors or bridges.
func (inst *Instance) MakeNoEscrowSeat(proposal offer.Proposal, settler Settler) (*Seat, *Admin, error) {
	return inst.NewSeatKit(proposal, amount.Allocation{}, settler)
}

// scheduleDeadline exits r when the deadline passes, unless it exited first.
func (inst *Instance) scheduleDeadline(r *record, deadline time.Time) {
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	r.timer = time.AfterFunc(delay, func() {
		ctx := context.Background()
		defer runtime.RecoverAndLogWithContext(ctx, inst.logger, "seat", "deadline_exit")

		if err := r.seat.Exit(ctx, nil); err != nil && !errors.Is(err, escrow.ErrSeatExited) {
			inst.logger.Log(ctx, log.LevelWarn, "deadline exit failed",
				log.Seat(string(r.handle)), log.Err(err))
		}
	})
}

// LiveSeats returns the seats that have not exited, in no particular order.
func (inst *Instance) LiveSeats() []*Seat {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	out := make([]*Seat, 0, len(inst.seats))

	for _, r := range inst.seats {
		if !r.exited {
			out = append(out, r.seat)
		}
	}

	return out
}

// ExitAll exits every live seat with completion.
func (inst *Instance) ExitAll(ctx context.Context, completion any) {
	for _, s := range inst.LiveSeats() {
		if err := s.Exit(ctx, completion); err != nil && !errors.Is(err, escrow.ErrSeatExited) {
			inst.logger.Log(ctx, log.LevelWarn, "exit during shutdown failed",
				log.Seat(string(s.Handle())), log.Err(err))
		}
	}
}

// FailAll fails every live seat with reason.
func (inst *Instance) FailAll(ctx context.Context, reason error) {
	for _, s := range inst.LiveSeats() {
		s.Fail(ctx, reason)
	}
}

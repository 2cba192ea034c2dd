package service

import (
	"context"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/offer"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// OfferHandler runs when an invitation is redeemed. Its result becomes the
// offer result of the user seat; an error fails the seat.
type OfferHandler func(ctx context.Context, s *seat.Seat) (any, error)

// Contract sets up an instance and returns its public facet.
type Contract func(ctx context.Context, facet *Facet) (any, error)

// Invitation is a single-use right to make an offer to one instance.
type Invitation struct {
	Handle      string
	Description string
	InstanceID  string
}

type invitation struct {
	Invitation
	facet   *Facet
	handler OfferHandler
}

// Facet is the contract's view of its instance.
type Facet struct {
	svc    *Service
	inst   *seat.Instance
	logger log.Logger
	public any

	mu        sync.Mutex
	accepting bool
	admins    map[seat.Handle]*seat.Admin
}

// StartInstance creates an instance and runs contract against its facet.
// The instance is shut down with failure when contract returns an error.
func (s *Service) StartInstance(ctx context.Context, contract Contract) (*Facet, error) {
	if contract == nil {
		return nil, escrow.InvalidInput("contract", "contract is required")
	}

	inst, err := seat.NewInstance(s.registry,
		seat.WithLogger(s.logger),
		seat.WithMetrics(s.metrics),
		seat.WithRevalidateOnCommit(s.revalidate),
	)
	if err != nil {
		return nil, err
	}

	f := &Facet{
		svc:       s,
		inst:      inst,
		logger:    s.logger.With(log.Instance(inst.ID())),
		accepting: true,
		admins:    make(map[seat.Handle]*seat.Admin),
	}

	public, err := contract(ctx, f)
	if err != nil {
		f.ShutdownWithFailure(ctx, err)

		return nil, err
	}

	f.public = public

	f.logger.Log(ctx, log.LevelInfo, "instance started")

	return f, nil
}

// ID returns the instance id.
func (f *Facet) ID() string {
	return f.inst.ID()
}

// Instance returns the seat instance behind the facet.
func (f *Facet) Instance() *seat.Instance {
	return f.inst
}

// Service returns the hosting service.
func (f *Facet) Service() *Service {
	return f.svc
}

// Public returns the value the contract returned from its start function.
func (f *Facet) Public() any {
	return f.public
}

// Lookup returns the amount maths of the instance.
func (f *Facet) Lookup() amount.Lookup {
	return f.inst.Lookup()
}

// MakeInvitation mints an invitation whose redemption runs handler.
func (f *Facet) MakeInvitation(description string, handler OfferHandler) (Invitation, error) {
	if handler == nil {
		return Invitation{}, escrow.InvalidInput("handler", "offer handler is required")
	}

	id, err := gonanoid.New()
	if err != nil {
		return Invitation{}, err
	}

	inv := &invitation{
		Invitation: Invitation{Handle: id, Description: description, InstanceID: f.inst.ID()},
		facet:      f,
		handler:    handler,
	}

	f.svc.mu.Lock()
	f.svc.invitations[id] = inv
	f.svc.mu.Unlock()

	return inv.Invitation, nil
}

// MakeEmptySeatKit creates a seat with no escrowed assets. Anything
// reallocated to it is paid out on the returned UserSeat when it exits.
func (f *Facet) MakeEmptySeatKit(proposal offer.Proposal) (*seat.Seat, *UserSeat, error) {
	us := newUserSeat(f)

	s, admin, err := f.inst.MakeNoEscrowSeat(proposal, seat.SettlerFunc(us.settle))
	if err != nil {
		return nil, nil, err
	}

	f.track(admin)
	us.attach(s)
	_ = us.offerKit.Resolve(nil)

	return s, us, nil
}

// Reallocate commits stagings atomically.
func (f *Facet) Reallocate(ctx context.Context, stagings ...*seat.Staging) error {
	return f.inst.Reallocate(ctx, stagings...)
}

// IsAcceptingOffers reports whether invitations of the instance can be redeemed.
func (f *Facet) IsAcceptingOffers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.accepting
}

// StopAcceptingOffers rejects every later redemption.
func (f *Facet) StopAcceptingOffers() {
	f.mu.Lock()
	f.accepting = false
	f.mu.Unlock()
}

// Shutdown stops offers and exits every live seat with completion.
func (f *Facet) Shutdown(ctx context.Context, completion any) {
	f.StopAcceptingOffers()
	f.inst.ExitAll(ctx, completion)

	f.logger.Log(ctx, log.LevelInfo, "instance shut down")
}

// ShutdownWithFailure stops offers and fails every live seat with reason.
func (f *Facet) ShutdownWithFailure(ctx context.Context, reason error) {
	f.StopAcceptingOffers()
	f.inst.FailAll(ctx, reason)

	f.logger.Log(ctx, log.LevelWarn, "instance shut down with failure", log.Err(reason))
}

func (f *Facet) track(admin *seat.Admin) {
	f.mu.Lock()
	f.admins[admin.Seat().Handle()] = admin
	f.mu.Unlock()
}

func (f *Facet) admin(s *seat.Seat) (*seat.Admin, error) {
	if s == nil || s.Instance() != f.inst {
		return nil, escrow.InvalidInput("seat", "seat does not belong to this instance")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.admins[s.Handle()]
	if !ok {
		return nil, escrow.InvalidInput("seat", "seat was not created by this facet")
	}

	return a, nil
}

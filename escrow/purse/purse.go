package purse

import (
	"context"
	"errors"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/google/uuid"
)

// ErrPaymentUsed is returned when a payment is deposited a second time.
var ErrPaymentUsed = errors.New("purse: payment already used")

// Payment is a single-use bundle of one brand's value moving into or out of
// escrow.
type Payment struct {
	ID     string
	Amount amount.Amount
}

// NewPayment returns a payment of a with a fresh id.
func NewPayment(a amount.Amount) Payment {
	return Payment{ID: uuid.NewString(), Amount: a}
}

// Purse holds the escrowed balance of one brand.
type Purse interface {
	Brand() amount.Brand
	// Deposit adds the payment to the balance and returns the amount credited.
	Deposit(ctx context.Context, p Payment) (amount.Amount, error)
	// Withdraw removes a from the balance and returns it as a new payment.
	Withdraw(ctx context.Context, a amount.Amount) (Payment, error)
	Balance(ctx context.Context) (amount.Amount, error)
}

// Memory is an in-process Purse. It is safe for concurrent use.
type Memory struct {
	math amount.Math

	mu      sync.Mutex
	balance amount.Amount
	used    map[string]struct{}
}

// NewMemory returns an empty purse for the brand of m.
func NewMemory(m amount.Math) *Memory {
	return &Memory{
		math:    m,
		balance: m.GetEmpty(),
		used:    make(map[string]struct{}),
	}
}

// Brand returns the purse brand.
func (p *Memory) Brand() amount.Brand {
	return p.math.Brand()
}

// Deposit credits the payment. Payments without an id are accepted and not
// tracked for reuse.
func (p *Memory) Deposit(_ context.Context, pay Payment) (amount.Amount, error) {
	a, err := p.math.Coerce(pay.Amount)
	if err != nil {
		return amount.Amount{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pay.ID != "" {
		if _, dup := p.used[pay.ID]; dup {
			return amount.Amount{}, ErrPaymentUsed
		}
	}

	next, err := p.math.Add(p.balance, a)
	if err != nil {
		return amount.Amount{}, err
	}

	p.balance = next

	if pay.ID != "" {
		p.used[pay.ID] = struct{}{}
	}

	return a, nil
}

// Withdraw debits a. It fails with escrow.ErrInsufficientAmount when the
// balance does not contain a.
func (p *Memory) Withdraw(_ context.Context, a amount.Amount) (Payment, error) {
	a, err := p.math.Coerce(a)
	if err != nil {
		return Payment{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := p.math.Subtract(p.balance, a)
	if err != nil {
		return Payment{}, err
	}

	p.balance = next

	return NewPayment(a), nil
}

// Balance returns the current balance.
func (p *Memory) Balance(_ context.Context) (amount.Amount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.balance, nil
}

// IsDomainError reports whether err is a domain rejection rather than a
// backend fault. Domain rejections are never retried and never trip a
// breaker.
func IsDomainError(err error) bool {
	return escrow.CodeOf(err) != "" || errors.Is(err, ErrPaymentUsed)
}

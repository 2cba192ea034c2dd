//go:build unit

package purse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/backoff"
	"github.com/LerianStudio/lib-escrow/escrow/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const moola amount.Brand = "Moola"

var errBackend = errors.New("backend down")

// flaky fails the first n calls with errBackend, then delegates.
type flaky struct {
	*Memory
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flaky) Withdraw(ctx context.Context, a amount.Amount) (Payment, error) {
	f.calls.Add(1)

	if f.failures.Add(-1) >= 0 {
		return Payment{}, errBackend
	}

	return f.Memory.Withdraw(ctx, a)
}

func TestMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewMemory(amount.NewNatMath(moola))

	pay := NewPayment(amount.Nat(moola, 10))

	credited, err := p.Deposit(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, "10 Moola", credited.String())

	_, err = p.Deposit(ctx, pay)
	require.ErrorIs(t, err, ErrPaymentUsed)

	out, err := p.Withdraw(ctx, amount.Nat(moola, 4))
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "4 Moola", out.Amount.String())

	_, err = p.Withdraw(ctx, amount.Nat(moola, 7))
	require.ErrorIs(t, err, escrow.ErrInsufficientAmount)

	_, err = p.Deposit(ctx, NewPayment(amount.Nat("Other", 1)))
	require.ErrorIs(t, err, escrow.ErrBrandMismatch)

	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6 Moola", bal.String())
}

func fastPolicy(attempts int) backoff.Policy {
	return backoff.Policy{Attempts: attempts, Base: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestGuarded_RetriesBackendFaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &flaky{Memory: NewMemory(amount.NewNatMath(moola))}
	inner.failures.Store(2)

	_, err := inner.Deposit(ctx, NewPayment(amount.Nat(moola, 5)))
	require.NoError(t, err)

	g := NewGuarded(inner, circuitbreaker.NewManager(nil), circuitbreaker.PurseConfig(), fastPolicy(3), nil)

	out, err := g.Withdraw(ctx, amount.Nat(moola, 5))
	require.NoError(t, err)
	assert.Equal(t, "5 Moola", out.Amount.String())
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestGuarded_DomainErrorsPassThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &flaky{Memory: NewMemory(amount.NewNatMath(moola))}
	breakers := circuitbreaker.NewManager(nil)

	cfg := circuitbreaker.PurseConfig()
	cfg.ConsecutiveFailures = 1

	g := NewGuarded(inner, breakers, cfg, fastPolicy(3), nil)

	for range 3 {
		_, err := g.Withdraw(ctx, amount.Nat(moola, 1))
		require.ErrorIs(t, err, escrow.ErrInsufficientAmount)
	}

	assert.Equal(t, int32(3), inner.calls.Load(), "domain errors must not be retried")
	assert.Equal(t, circuitbreaker.StateClosed, breakers.GetState("purse.Moola"))
}

func TestGuarded_OpensBreaker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &flaky{Memory: NewMemory(amount.NewNatMath(moola))}
	inner.failures.Store(100)
	breakers := circuitbreaker.NewManager(nil)

	cfg := circuitbreaker.PurseConfig()
	cfg.ConsecutiveFailures = 2

	g := NewGuarded(inner, breakers, cfg, fastPolicy(1), nil)

	for range 2 {
		_, err := g.Withdraw(ctx, amount.Nat(moola, 1))
		require.ErrorIs(t, err, errBackend)
	}

	_, err := g.Withdraw(ctx, amount.Nat(moola, 1))
	require.ErrorIs(t, err, circuitbreaker.ErrServiceUnavailable)
	assert.Equal(t, int32(2), inner.calls.Load())
}

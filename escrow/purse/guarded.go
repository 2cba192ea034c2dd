package purse

import (
	"context"
	"fmt"

	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/backoff"
	"github.com/LerianStudio/lib-escrow/escrow/circuitbreaker"
	"github.com/LerianStudio/lib-escrow/escrow/log"
)

// Guarded wraps a Purse backend with bounded retries and a circuit breaker.
// Domain rejections pass through untouched and do not count as failures.
type Guarded struct {
	inner    Purse
	breakers circuitbreaker.Manager
	name     string
	policy   backoff.Policy
	logger   log.Logger
}

// NewGuarded registers a breaker named "purse.<brand>" on breakers and
// returns the wrapped purse.
func NewGuarded(inner Purse, breakers circuitbreaker.Manager, cfg circuitbreaker.Config, policy backoff.Policy, logger log.Logger) *Guarded {
	name := "purse." + string(inner.Brand())
	breakers.GetOrCreate(name, cfg)

	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool { return !IsDomainError(err) }
	}

	return &Guarded{
		inner:    inner,
		breakers: breakers,
		name:     name,
		policy:   policy,
		logger:   log.OrNop(logger),
	}
}

// Brand returns the brand of the wrapped purse.
func (g *Guarded) Brand() amount.Brand {
	return g.inner.Brand()
}

// Deposit deposits through the breaker.
func (g *Guarded) Deposit(ctx context.Context, p Payment) (amount.Amount, error) {
	return guard(ctx, g, "deposit", func(ctx context.Context) (amount.Amount, error) {
		return g.inner.Deposit(ctx, p)
	})
}

// Withdraw withdraws through the breaker.
func (g *Guarded) Withdraw(ctx context.Context, a amount.Amount) (Payment, error) {
	return guard(ctx, g, "withdraw", func(ctx context.Context) (Payment, error) {
		return g.inner.Withdraw(ctx, a)
	})
}

// Balance reads the balance through the breaker.
func (g *Guarded) Balance(ctx context.Context) (amount.Amount, error) {
	return guard(ctx, g, "balance", g.inner.Balance)
}

// outcome carries a domain rejection through the breaker as a success.
type outcome[T any] struct {
	value T
	err   error
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	var result outcome[T]

	err := backoff.Retry(ctx, g.policy, func(ctx context.Context) error {
		raw, err := g.breakers.Execute(ctx, g.name, func() (any, error) {
			v, err := fn(ctx)
			if err != nil && !IsDomainError(err) {
				return nil, err
			}

			return outcome[T]{value: v, err: err}, nil
		})
		if err != nil {
			g.logger.Log(ctx, log.LevelWarn, "purse call failed",
				log.String("breaker", g.name), log.String("operation", op), log.Err(err))

			return err
		}

		out, ok := raw.(outcome[T])
		if !ok {
			return fmt.Errorf("purse %s: unexpected breaker result %T", op, raw)
		}

		result = out

		return nil
	})
	if err != nil {
		var zero T

		return zero, fmt.Errorf("purse %s: %w", op, err)
	}

	return result.value, result.err
}

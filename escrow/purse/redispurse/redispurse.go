package redispurse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	// DefaultKeyPrefix namespaces purse keys.
	DefaultKeyPrefix = "escrow:"
	maxTxAttempts    = 8
)

// ErrContention is returned when a balance change lost the optimistic
// transaction race maxTxAttempts times in a row.
var ErrContention = errors.New("redispurse: balance update contended")

// Purse is a Redis-backed purse for one brand.
type Purse struct {
	client  redis.UniversalClient
	math    amount.Math
	key     string
	usedKey string
	logger  log.Logger
}

// New returns a purse for the brand of m stored under prefix. An empty
// prefix means DefaultKeyPrefix.
func New(client redis.UniversalClient, m amount.Math, prefix string, logger log.Logger) (*Purse, error) {
	if client == nil {
		return nil, escrow.InvalidInput("client", "redis client is required")
	}

	if m == nil {
		return nil, escrow.InvalidInput("math", "amount math is required")
	}

	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	key := prefix + "purse:" + string(m.Brand())

	return &Purse{
		client:  client,
		math:    m,
		key:     key,
		usedKey: key + ":payments",
		logger:  log.OrNop(logger),
	}, nil
}

// Brand returns the purse brand.
func (p *Purse) Brand() amount.Brand {
	return p.math.Brand()
}

// Deposit credits pay and records its id.
func (p *Purse) Deposit(ctx context.Context, pay purse.Payment) (amount.Amount, error) {
	a, err := p.math.Coerce(pay.Amount)
	if err != nil {
		return amount.Amount{}, err
	}

	err = p.update(ctx, func(tx *redis.Tx, balance amount.Amount) (amount.Amount, error) {
		if pay.ID != "" {
			used, err := tx.SIsMember(ctx, p.usedKey, pay.ID).Result()
			if err != nil {
				return amount.Amount{}, fmt.Errorf("redis sismember: %w", err)
			}

			if used {
				return amount.Amount{}, purse.ErrPaymentUsed
			}
		}

		return p.math.Add(balance, a)
	}, pay.ID)
	if err != nil {
		return amount.Amount{}, err
	}

	return a, nil
}

// Withdraw debits a and returns it as a new payment.
func (p *Purse) Withdraw(ctx context.Context, a amount.Amount) (purse.Payment, error) {
	a, err := p.math.Coerce(a)
	if err != nil {
		return purse.Payment{}, err
	}

	err = p.update(ctx, func(_ *redis.Tx, balance amount.Amount) (amount.Amount, error) {
		return p.math.Subtract(balance, a)
	}, "")
	if err != nil {
		return purse.Payment{}, err
	}

	return purse.NewPayment(a), nil
}

// Balance reads the stored balance.
func (p *Purse) Balance(ctx context.Context) (amount.Amount, error) {
	raw, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return p.math.GetEmpty(), nil
	}

	if err != nil {
		return amount.Amount{}, fmt.Errorf("redis get: %w", err)
	}

	return p.decode(raw)
}

// update runs fn against the watched balance and writes its result. When
// paymentID is set it is added to the payment set in the same transaction.
func (p *Purse) update(ctx context.Context, fn func(*redis.Tx, amount.Amount) (amount.Amount, error), paymentID string) error {
	txf := func(tx *redis.Tx) error {
		balance := p.math.GetEmpty()

		raw, err := tx.Get(ctx, p.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			if balance, err = p.decode(raw); err != nil {
				return err
			}
		}

		next, err := fn(tx, balance)
		if err != nil {
			return err
		}

		encoded, err := p.encode(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, p.key, encoded, 0)

			if paymentID != "" {
				pipe.SAdd(ctx, p.usedKey, paymentID)
			}

			return nil
		})

		return err
	}

	for range maxTxAttempts {
		err := p.client.Watch(ctx, txf, p.key, p.usedKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		p.logger.Log(ctx, log.LevelDebug, "purse transaction contended, retrying", log.Brand(string(p.Brand())))
	}

	return ErrContention
}

func (p *Purse) encode(a amount.Amount) (string, error) {
	switch v := a.Value.(type) {
	case decimal.Decimal:
		return v.String(), nil
	case []string:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode set amount: %w", err)
		}

		return string(b), nil
	default:
		return "", escrow.InvalidInput(string(a.Brand), fmt.Sprintf("cannot store value of type %T", a.Value))
	}
}

func (p *Purse) decode(raw string) (amount.Amount, error) {
	switch p.math.Kind() {
	case amount.KindNat:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return amount.Amount{}, fmt.Errorf("decode nat balance: %w", err)
		}

		return p.math.Make(d)
	case amount.KindSet:
		var elems []string
		if err := json.Unmarshal([]byte(raw), &elems); err != nil {
			return amount.Amount{}, fmt.Errorf("decode set balance: %w", err)
		}

		return p.math.Make(elems)
	default:
		return amount.Amount{}, escrow.InvalidInput(string(p.Brand()), "unsupported amount kind "+string(p.math.Kind()))
	}
}

package contractsupport

import (
	"context"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/LerianStudio/lib-escrow/escrow/safe"
	"github.com/LerianStudio/lib-escrow/escrow/seat"
	"github.com/LerianStudio/lib-escrow/escrow/service"
	"github.com/shopspring/decimal"
)

// DepositToSeat escrows payments and credits them to s.
func DepositToSeat(ctx context.Context, f *service.Facet, s *seat.Seat, payments map[string]purse.Payment) (amount.Allocation, error) {
	return f.Deposit(ctx, s, payments)
}

// WithdrawFromSeat debits amounts from s and returns them as payments.
func WithdrawFromSeat(ctx context.Context, f *service.Facet, s *seat.Seat, amounts amount.Allocation) (service.Payouts, error) {
	return f.Withdraw(ctx, s, amounts)
}

// PercentOf returns floor(a * percent / 100) as an amount of the same brand.
// Only natural-number brands are supported.
func PercentOf(m amount.Math, a amount.Amount, percent decimal.Decimal) (amount.Amount, error) {
	if m.Kind() != amount.KindNat {
		return amount.Amount{}, escrow.InvalidInput(string(m.Brand()), "percentages need a natural-number brand")
	}

	a, err := m.Coerce(a)
	if err != nil {
		return amount.Amount{}, err
	}

	v, ok := a.Value.(decimal.Decimal)
	if !ok {
		return amount.Amount{}, escrow.InvalidInput(string(m.Brand()), "amount value is not a decimal")
	}

	share, err := safe.PercentOf(v, percent)
	if err != nil {
		return amount.Amount{}, escrow.InvalidInput("percent", err.Error())
	}

	return m.Make(share)
}

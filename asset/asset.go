package asset

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// AVAILABLE BALANCE
// =============================================================================

// CanWithdraw reports whether absAmount can leave the account by valueDay:
//
//	balance
//	+ unprocessed cashflows settling on or before valueDay
//	- unprocessed withdrawals already requested
//	- absAmount
//	>= 0
//
// No rounding is applied; this is an admission check, not a quoted balance.
func (l *Ledger) CanWithdraw(ctx context.Context, s generic.Store, accountID, currency string, absAmount decimal.Decimal, valueDay generic.Day) (bool, error) {
	cb, err := l.CurrentBalance(ctx, s, accountID, currency)
	if err != nil {
		return false, err
	}
	available := cb.Amount

	cashflows, err := s.FindUnrealizedCashflows(ctx, accountID, currency, valueDay)
	if err != nil {
		return false, err
	}
	for _, cf := range cashflows {
		available = available.Add(cf.Amount)
	}

	withdrawals, err := s.FindUnprocessedCashInOut(ctx, accountID, currency, true)
	if err != nil {
		return false, err
	}
	for _, w := range withdrawals {
		available = available.Sub(w.AbsAmount)
	}

	return !available.Sub(absAmount).IsNegative(), nil
}

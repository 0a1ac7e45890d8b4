/*
Package asset implements the settlement state machines.

PURPOSE:
  Every rule about money moving through an account lives here: carrying the
  cash balance forward, registering and realizing cashflows, admitting and
  processing withdrawal requests, and the available-balance check.

KEY CONCEPTS:
  Ledger:       Domain service holding the calendar and clock
  CashBalance:  Settled amount as of a base day, carried forward lazily
  Cashflow:     Unprocessed -> Processed on its value day (realize)
  CashInOut:    Unprocessed -> Processed by the closing job (creates a Cashflow)

STATE DIAGRAM (Cashflow and CashInOut):
  Unprocessed -> Processed | Cancelled | Error
  All three are terminal. Processed is reached only through
  RealizeCashflow / ProcessCashInOut.

CALLING CONVENTION:
  Operations are functions on Ledger over plain structs. The store and the
  acting user are explicit parameters; callers are expected to run them
  inside a txn unit holding the account's lock.

ERRORS:
  Rule violations are *generic.ValidationError values keyed by the
  error.* message keys in generic/errors.go. Store failures pass through.

SEE ALSO:
  - service/: Use cases wrapping these operations in locked units
  - calendar/: Business-day arithmetic
*/
package asset

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/calendar"
	"github.com/warp/settlement-engine/generic"
)

// Calendar is the business-day surface the ledger needs.
type Calendar interface {
	CurrentDay(ctx context.Context) (generic.Day, error)
	Day(ctx context.Context, n int) (generic.Day, error)
}

// Ledger is the domain service behind every settlement operation.
type Ledger struct {
	days  Calendar
	clock calendar.Clock
}

func NewLedger(days Calendar, clock calendar.Clock) *Ledger {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Ledger{days: days, clock: clock}
}

// =============================================================================
// CASH BALANCE
// =============================================================================

// GetOrCreateBalance returns the balance of (accountID, currency) as of day.
// A missing record is created at zero; an older one is carried forward in
// place with its amount unchanged. A record already past day is rejected.
func (l *Ledger) GetOrCreateBalance(ctx context.Context, s generic.Store, accountID, currency string, day generic.Day) (*generic.CashBalance, error) {
	cb, err := s.GetCashBalance(ctx, accountID, currency)
	if err != nil {
		return nil, err
	}

	if cb == nil {
		cb = &generic.CashBalance{
			AccountID: accountID,
			Currency:  currency,
			BaseDay:   day,
			Amount:    decimal.Zero,
		}
		if err := s.SaveCashBalance(ctx, cb); err != nil {
			return nil, err
		}
		return cb, nil
	}

	switch {
	case cb.BaseDay.Equal(day):
		return cb, nil
	case cb.BaseDay.After(day):
		return nil, generic.NewFieldError("baseDay", generic.ErrKeyCashBalanceBackdated, cb.BaseDay.String(), day.String())
	}

	cb.BaseDay = day
	if err := s.SaveCashBalance(ctx, cb); err != nil {
		return nil, err
	}
	return cb, nil
}

// CurrentBalance is GetOrCreateBalance at the current business day.
func (l *Ledger) CurrentBalance(ctx context.Context, s generic.Store, accountID, currency string) (*generic.CashBalance, error) {
	day, err := l.days.CurrentDay(ctx)
	if err != nil {
		return nil, err
	}
	return l.GetOrCreateBalance(ctx, s, accountID, currency, day)
}

// ApplyToBalance adds delta and stores the result truncated to the
// currency's minor unit.
func (l *Ledger) ApplyToBalance(ctx context.Context, s generic.Store, cb *generic.CashBalance, delta decimal.Decimal) error {
	cb.Amount = generic.RoundDown(cb.Amount.Add(delta), cb.Currency)
	return s.SaveCashBalance(ctx, cb)
}

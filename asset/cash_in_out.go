package asset

import (
	"context"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// CASH IN/OUT STATE MACHINE
// =============================================================================

// Withdraw admits a withdrawal request. Event day is the next business day,
// value day the third; both are computed, never taken from the caller.
func (l *Ledger) Withdraw(ctx context.Context, s generic.Store, actor generic.Actor, reg generic.RegCashOut) (*generic.CashInOut, error) {
	v := generic.NewValidator()
	v.CheckField(reg.AccountID != "", "accountId", generic.ErrKeyRequired)
	currency, err := generic.ParseCurrency(reg.Currency)
	v.CheckField(err == nil, "currency", generic.ErrKeyCurrency, reg.Currency)
	v.CheckField(reg.AbsAmount.IsPositive(), "absAmount", generic.ErrKeyAmountPositive)
	if err == nil {
		v.CheckField(generic.FitsScale(reg.AbsAmount, currency), "absAmount", generic.ErrKeyAmountScale, generic.CurrencyScale(currency))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	requestDay, err := l.days.CurrentDay(ctx)
	if err != nil {
		return nil, err
	}
	eventDay, err := l.days.Day(ctx, 1)
	if err != nil {
		return nil, err
	}
	valueDay, err := l.days.Day(ctx, 3)
	if err != nil {
		return nil, err
	}

	v = generic.NewValidator()
	v.Check(eventDay.After(requestDay), generic.ErrKeyCashInOutAfterEqualsDay)
	v.Check(valueDay.AfterOrEqual(eventDay), generic.ErrKeyCashInOutBeforeEqualsDay)
	if err := v.Err(); err != nil {
		return nil, err
	}

	ok, err := l.CanWithdraw(ctx, s, reg.AccountID, currency, reg.AbsAmount, valueDay)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, generic.NewFieldError("absAmount", generic.ErrKeyCashInOutWithdrawAmount)
	}

	target, err := s.GetFiAccount(ctx, reg.AccountID, generic.RemarkCashOut, currency)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, generic.NotFound("FiAccount", reg.AccountID)
	}
	self, err := s.GetSelfFiAccount(ctx, generic.RemarkCashOut, currency)
	if err != nil {
		return nil, err
	}
	if self == nil {
		return nil, generic.NotFound("SelfFiAccount", currency)
	}

	cio := &generic.CashInOut{
		AccountID:         reg.AccountID,
		Currency:          currency,
		AbsAmount:         reg.AbsAmount,
		Withdrawal:        true,
		RequestDay:        requestDay,
		RequestDate:       l.clock.Now(),
		EventDay:          eventDay,
		ValueDay:          valueDay,
		TargetFiCode:      target.FiCode,
		TargetFiAccountID: target.FiAccountID,
		SelfFiCode:        self.FiCode,
		SelfFiAccountID:   self.FiAccountID,
		StatusType:        generic.StatusUnprocessed,
		UpdateActor:       actor.ID,
	}
	if err := s.InsertCashInOut(ctx, cio); err != nil {
		return nil, err
	}
	return cio, nil
}

// ProcessCashInOut registers the linked cashflow and marks the request
// Processed. Only valid on or after the event day.
func (l *Ledger) ProcessCashInOut(ctx context.Context, s generic.Store, actor generic.Actor, cio *generic.CashInOut) (*generic.CashInOut, error) {
	current, err := l.days.CurrentDay(ctx)
	if err != nil {
		return nil, err
	}

	v := generic.NewValidator()
	v.Check(cio.StatusType.IsUnprocessed(), generic.ErrKeyUnprocessing, string(cio.StatusType))
	v.Check(current.AfterOrEqual(cio.EventDay), generic.ErrKeyCashInOutAfterEqualsDay, cio.EventDay.String())
	if err := v.Err(); err != nil {
		return nil, err
	}

	cf, err := l.RegisterCashflow(ctx, s, actor, cashflowOf(cio))
	if err != nil {
		return nil, err
	}

	cfID := cf.ID
	cio.CashflowID = &cfID
	cio.StatusType = generic.StatusProcessed
	cio.StatusReason = ""
	cio.UpdateActor = actor.ID
	if err := s.UpdateCashInOut(ctx, cio); err != nil {
		return nil, err
	}
	return cio, nil
}

func cashflowOf(cio *generic.CashInOut) generic.RegCashflow {
	reg := generic.RegCashflow{
		AccountID:    cio.AccountID,
		Currency:     cio.Currency,
		Amount:       cio.AbsAmount,
		CashflowType: generic.CashflowCashIn,
		Remark:       generic.RemarkCashIn,
		EventDay:     cio.EventDay,
		ValueDay:     cio.ValueDay,
	}
	if cio.Withdrawal {
		reg.Amount = cio.AbsAmount.Neg()
		reg.CashflowType = generic.CashflowCashOut
		reg.Remark = generic.RemarkCashOut
	}
	return reg
}

// CancelCashInOut withdraws the request before its event day.
func (l *Ledger) CancelCashInOut(ctx context.Context, s generic.Store, actor generic.Actor, cio *generic.CashInOut, reason string) (*generic.CashInOut, error) {
	current, err := l.days.CurrentDay(ctx)
	if err != nil {
		return nil, err
	}

	v := generic.NewValidator()
	v.Check(cio.StatusType.IsUnprocessed(), generic.ErrKeyUnprocessing, string(cio.StatusType))
	v.Check(current.Before(cio.EventDay), generic.ErrKeyCashInOutBeforeEqualsDay, cio.EventDay.String())
	if err := v.Err(); err != nil {
		return nil, err
	}

	return l.terminateCashInOut(ctx, s, actor, cio, generic.StatusCancelled, reason)
}

// ErrorCashInOut marks the request Error without creating a cashflow.
func (l *Ledger) ErrorCashInOut(ctx context.Context, s generic.Store, actor generic.Actor, cio *generic.CashInOut, reason string) (*generic.CashInOut, error) {
	if !cio.StatusType.IsUnprocessed() {
		return nil, generic.NewValidationError(generic.ErrKeyUnprocessing, string(cio.StatusType))
	}
	return l.terminateCashInOut(ctx, s, actor, cio, generic.StatusError, reason)
}

func (l *Ledger) terminateCashInOut(ctx context.Context, s generic.Store, actor generic.Actor, cio *generic.CashInOut, status generic.ActionStatus, reason string) (*generic.CashInOut, error) {
	cio.StatusType = status
	cio.StatusReason = reason
	cio.UpdateActor = actor.ID
	if err := s.UpdateCashInOut(ctx, cio); err != nil {
		return nil, err
	}
	return cio, nil
}

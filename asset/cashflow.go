package asset

import (
	"context"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// CASHFLOW STATE MACHINE
// =============================================================================

// RegisterCashflow persists a new Unprocessed cashflow. A zero EventDay means
// today. When both days are today the cashflow is realized immediately.
func (l *Ledger) RegisterCashflow(ctx context.Context, s generic.Store, actor generic.Actor, reg generic.RegCashflow) (*generic.Cashflow, error) {
	current, err := l.days.CurrentDay(ctx)
	if err != nil {
		return nil, err
	}

	eventDay := reg.EventDay
	if eventDay.IsZero() {
		eventDay = current
	}

	v := generic.NewValidator()
	v.CheckField(reg.ValueDay.AfterOrEqual(eventDay), "valueDay", generic.ErrKeyCashflowBeforeEqualsDay)
	v.CheckField(eventDay.AfterOrEqual(current), "eventDay", generic.ErrKeyCashflowRealizeDay)
	if err := v.Err(); err != nil {
		return nil, err
	}

	cf := &generic.Cashflow{
		AccountID:    reg.AccountID,
		Currency:     reg.Currency,
		Amount:       reg.Amount,
		CashflowType: reg.CashflowType,
		Remark:       reg.Remark,
		EventDay:     eventDay,
		EventDate:    l.clock.Now(),
		ValueDay:     reg.ValueDay,
		StatusType:   generic.StatusUnprocessed,
		UpdateActor:  actor.ID,
	}
	if err := s.InsertCashflow(ctx, cf); err != nil {
		return nil, err
	}

	if eventDay.Equal(current) && reg.ValueDay.Equal(current) {
		return l.RealizeCashflow(ctx, s, actor, cf)
	}
	return cf, nil
}

// RealizeCashflow applies the amount to the balance once the value day has
// arrived and marks the cashflow Processed.
func (l *Ledger) RealizeCashflow(ctx context.Context, s generic.Store, actor generic.Actor, cf *generic.Cashflow) (*generic.Cashflow, error) {
	current, err := l.days.CurrentDay(ctx)
	if err != nil {
		return nil, err
	}

	if current.Before(cf.ValueDay) {
		return nil, generic.NewValidationError(generic.ErrKeyCashflowRealizeDay, cf.ValueDay.String())
	}
	if !cf.StatusType.IsUnprocessed() {
		return nil, generic.NewValidationError(generic.ErrKeyUnprocessing, string(cf.StatusType))
	}

	cb, err := l.GetOrCreateBalance(ctx, s, cf.AccountID, cf.Currency, current)
	if err != nil {
		return nil, err
	}
	if err := l.ApplyToBalance(ctx, s, cb, cf.Amount); err != nil {
		return nil, err
	}

	cf.StatusType = generic.StatusProcessed
	cf.StatusReason = ""
	cf.UpdateActor = actor.ID
	if err := s.UpdateCashflow(ctx, cf); err != nil {
		return nil, err
	}
	return cf, nil
}

// ErrorCashflow marks an Unprocessed cashflow Error. The balance is untouched.
func (l *Ledger) ErrorCashflow(ctx context.Context, s generic.Store, actor generic.Actor, cf *generic.Cashflow, reason string) (*generic.Cashflow, error) {
	return l.terminateCashflow(ctx, s, actor, cf, generic.StatusError, reason)
}

// CancelCashflow marks an Unprocessed cashflow Cancelled. The balance is untouched.
func (l *Ledger) CancelCashflow(ctx context.Context, s generic.Store, actor generic.Actor, cf *generic.Cashflow, reason string) (*generic.Cashflow, error) {
	return l.terminateCashflow(ctx, s, actor, cf, generic.StatusCancelled, reason)
}

func (l *Ledger) terminateCashflow(ctx context.Context, s generic.Store, actor generic.Actor, cf *generic.Cashflow, status generic.ActionStatus, reason string) (*generic.Cashflow, error) {
	if !cf.StatusType.IsUnprocessed() {
		return nil, generic.NewValidationError(generic.ErrKeyUnprocessing, string(cf.StatusType))
	}
	cf.StatusType = status
	cf.StatusReason = reason
	cf.UpdateActor = actor.ID
	if err := s.UpdateCashflow(ctx, cf); err != nil {
		return nil, err
	}
	return cf, nil
}

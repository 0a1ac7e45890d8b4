package service

import (
	"context"

	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/txn"
	"go.uber.org/zap"
)

// AssetService serves customers acting on their own account.
type AssetService struct {
	deps Deps
}

func NewAssetService(deps Deps) *AssetService {
	return &AssetService{deps: deps.normalized()}
}

// Withdraw files a withdrawal from the caller's account. The account always
// comes from the actor, never from the request.
func (s *AssetService) Withdraw(ctx context.Context, actor generic.Actor, reg generic.RegCashOut) (*generic.CashInOut, error) {
	reg.AccountID = actor.ID
	cio, err := txn.Do(ctx, s.deps.Runner.Tx().WriteLock(accountLock(actor.ID)), func(ctx context.Context, st generic.Store) (*generic.CashInOut, error) {
		return s.deps.Ledger.Withdraw(ctx, st, actor, reg)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info("withdrawal requested",
		zap.Int64("cash_in_out_id", cio.ID),
		zap.String("account_id", cio.AccountID),
		zap.String("currency", cio.Currency),
		zap.String("amount", cio.AbsAmount.String()),
		zap.Stringer("event_day", cio.EventDay),
		zap.Stringer("value_day", cio.ValueDay),
	)
	return cio, nil
}

// FindUnprocessedCashOut lists the caller's pending withdrawals, newest first.
func (s *AssetService) FindUnprocessedCashOut(ctx context.Context, actor generic.Actor) ([]generic.CashInOut, error) {
	return txn.Do(ctx, s.deps.Runner.Tx().ReadOnly().ReadLock(accountLock(actor.ID)), func(ctx context.Context, st generic.Store) ([]generic.CashInOut, error) {
		return st.FindUnprocessedCashInOutByAccount(ctx, actor.ID, true)
	})
}

// CancelCashOut cancels one of the caller's withdrawals before its event day.
// Requests of other accounts are reported as not found.
func (s *AssetService) CancelCashOut(ctx context.Context, actor generic.Actor, id int64) (*generic.CashInOut, error) {
	return txn.Do(ctx, s.deps.Runner.Tx().WriteLock(accountLock(actor.ID)), func(ctx context.Context, st generic.Store) (*generic.CashInOut, error) {
		cio, err := st.LoadCashInOutForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if cio == nil || cio.AccountID != actor.ID || !cio.Withdrawal {
			return nil, generic.NotFound("CashInOut", id)
		}
		return s.deps.Ledger.CancelCashInOut(ctx, st, actor, cio, "cancelled by customer")
	})
}

package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/txn"
	"go.uber.org/zap"
)

// AssetAdminService serves back-office queries and the daily batch jobs.
type AssetAdminService struct {
	deps Deps
}

func NewAssetAdminService(deps Deps) *AssetAdminService {
	return &AssetAdminService{deps: deps.normalized()}
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *AssetAdminService) FindCashInOut(ctx context.Context, filter generic.Filter) (generic.Page[generic.CashInOut], error) {
	return txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) (generic.Page[generic.CashInOut], error) {
		return st.FindCashInOut(ctx, filter.Normalized())
	})
}

func (s *AssetAdminService) FindCashflows(ctx context.Context, filter generic.Filter) (generic.Page[generic.Cashflow], error) {
	return txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) (generic.Page[generic.Cashflow], error) {
		return st.FindCashflows(ctx, filter.Normalized())
	})
}

// CancelCashInOut cancels any account's request before its event day.
func (s *AssetAdminService) CancelCashInOut(ctx context.Context, actor generic.Actor, id int64, reason string) (*generic.CashInOut, error) {
	found, err := txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) (*generic.CashInOut, error) {
		return st.GetCashInOut(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, generic.NotFound("CashInOut", id)
	}

	return txn.Do(ctx, s.deps.Runner.Tx().WriteLock(accountLock(found.AccountID)), func(ctx context.Context, st generic.Store) (*generic.CashInOut, error) {
		cio, err := st.LoadCashInOutForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if cio == nil {
			return nil, generic.NotFound("CashInOut", id)
		}
		return s.deps.Ledger.CancelCashInOut(ctx, st, actor, cio, reason)
	})
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// CloseCashOut processes every Unprocessed request whose event day has
// arrived, registering its cashflow. Requests that fail are marked Error.
func (s *AssetAdminService) CloseCashOut(ctx context.Context, actor generic.Actor) (BatchResult, error) {
	result := BatchResult{RunID: uuid.New()}
	log := s.deps.Log.With(zap.String("job", "closingCashOut"), zap.Stringer("run_id", result.RunID))

	day, err := s.deps.Calendar.CurrentDay(ctx)
	if err != nil {
		return result, err
	}
	log.Info("batch started", zap.Stringer("day", day))

	var afterID int64
	for {
		page, err := txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) ([]generic.CashInOut, error) {
			return st.FindClosableCashInOut(ctx, day, afterID, s.deps.BatchPageSize)
		})
		if err != nil {
			return result, err
		}

		for _, item := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			afterID = item.ID
			result.record(s.closeOne(ctx, log, actor, item))
		}

		if len(page) < s.deps.BatchPageSize {
			break
		}
	}

	log.Info("batch finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *AssetAdminService) closeOne(ctx context.Context, log *zap.Logger, actor generic.Actor, item generic.CashInOut) outcome {
	skipped := false
	err := s.deps.Runner.Tx().RequiresNew().WriteLock(accountLock(item.AccountID)).Run(ctx, func(ctx context.Context, st generic.Store) error {
		cio, err := st.LoadCashInOutForUpdate(ctx, item.ID)
		if err != nil {
			return err
		}
		if cio == nil || cio.StatusType.IsTerminal() {
			skipped = true
			return nil
		}
		_, err = s.deps.Ledger.ProcessCashInOut(ctx, st, actor, cio)
		return err
	})
	if err == nil {
		if skipped {
			return outcomeSkipped
		}
		return outcomeProcessed
	}

	log.Warn("cash out closing failed",
		zap.Int64("cash_in_out_id", item.ID),
		zap.String("account_id", item.AccountID),
		zap.Error(err),
	)

	reason := generic.Reason(err)
	markErr := s.deps.Runner.Tx().RequiresNew().WriteLock(accountLock(item.AccountID)).Run(ctx, func(ctx context.Context, st generic.Store) error {
		cio, err := st.LoadCashInOutForUpdate(ctx, item.ID)
		if err != nil {
			return err
		}
		if cio == nil || !cio.StatusType.IsUnprocessed() {
			return nil
		}
		_, err = s.deps.Ledger.ErrorCashInOut(ctx, st, actor, cio, reason)
		return err
	})
	if markErr != nil {
		log.Error("marking cash out as error failed",
			zap.Int64("cash_in_out_id", item.ID),
			zap.Error(markErr),
		)
	}
	return outcomeFailed
}

// RealizeCashflows applies every Unprocessed cashflow whose value day has
// arrived. Cashflows that fail are marked Error.
func (s *AssetAdminService) RealizeCashflows(ctx context.Context, actor generic.Actor) (BatchResult, error) {
	result := BatchResult{RunID: uuid.New()}
	log := s.deps.Log.With(zap.String("job", "realizeCashflow"), zap.Stringer("run_id", result.RunID))

	day, err := s.deps.Calendar.CurrentDay(ctx)
	if err != nil {
		return result, err
	}
	log.Info("batch started", zap.Stringer("day", day))

	var afterID int64
	for {
		page, err := txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) ([]generic.Cashflow, error) {
			return st.FindRealizableCashflows(ctx, day, afterID, s.deps.BatchPageSize)
		})
		if err != nil {
			return result, err
		}

		for _, item := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			afterID = item.ID
			result.record(s.realizeOne(ctx, log, actor, item))
		}

		if len(page) < s.deps.BatchPageSize {
			break
		}
	}

	log.Info("batch finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *AssetAdminService) realizeOne(ctx context.Context, log *zap.Logger, actor generic.Actor, item generic.Cashflow) outcome {
	skipped := false
	err := s.deps.Runner.Tx().RequiresNew().WriteLock(accountLock(item.AccountID)).Run(ctx, func(ctx context.Context, st generic.Store) error {
		cf, err := st.LoadCashflowForUpdate(ctx, item.ID)
		if err != nil {
			return err
		}
		if cf == nil || cf.StatusType.IsTerminal() {
			skipped = true
			return nil
		}
		_, err = s.deps.Ledger.RealizeCashflow(ctx, st, actor, cf)
		return err
	})
	if err == nil {
		if skipped {
			return outcomeSkipped
		}
		return outcomeProcessed
	}

	log.Warn("cashflow realization failed",
		zap.Int64("cashflow_id", item.ID),
		zap.String("account_id", item.AccountID),
		zap.Error(err),
	)

	reason := generic.Reason(err)
	markErr := s.deps.Runner.Tx().RequiresNew().WriteLock(accountLock(item.AccountID)).Run(ctx, func(ctx context.Context, st generic.Store) error {
		cf, err := st.LoadCashflowForUpdate(ctx, item.ID)
		if err != nil {
			return err
		}
		if cf == nil || !cf.StatusType.IsUnprocessed() {
			return nil
		}
		_, err = s.deps.Ledger.ErrorCashflow(ctx, st, actor, cf, reason)
		return err
	})
	if markErr != nil {
		log.Error("marking cashflow as error failed",
			zap.Int64("cashflow_id", item.ID),
			zap.Error(markErr),
		)
	}
	return outcomeFailed
}

package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/txn"
	"go.uber.org/zap"
)

// businessDayLock serializes changes of the current business day.
const businessDayLock = systemLockPrefix + generic.SettingBusinessDay

// SystemAdminService owns the calendar and the bank-account master data.
type SystemAdminService struct {
	deps Deps
}

func NewSystemAdminService(deps Deps) *SystemAdminService {
	return &SystemAdminService{deps: deps.normalized()}
}

// CurrentDay returns the current business day.
func (s *SystemAdminService) CurrentDay(ctx context.Context) (generic.Day, error) {
	return s.deps.Calendar.CurrentDay(ctx)
}

// ProcessDay moves the current business day forward by one business day and
// returns the new day.
func (s *SystemAdminService) ProcessDay(ctx context.Context) (generic.Day, error) {
	day, err := txn.Do(ctx, s.deps.Runner.Tx().WriteLock(businessDayLock), func(ctx context.Context, st generic.Store) (generic.Day, error) {
		next, err := s.deps.Calendar.Day(ctx, 1)
		if err != nil {
			return generic.Day{}, err
		}
		if err := s.deps.Calendar.Advance(ctx, next); err != nil {
			return generic.Day{}, err
		}
		return next, nil
	})
	if err != nil {
		return generic.Day{}, err
	}
	s.deps.Log.Info("business day advanced", zap.Stringer("day", day))
	return day, nil
}

// pinger is implemented by stores backed by a connection pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers. Stores without a connection are
// always healthy.
func (s *SystemAdminService) Health(ctx context.Context) error {
	if p, ok := s.deps.Runner.Store().(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// FindSettings lists the application settings whose key contains keyword.
func (s *SystemAdminService) FindSettings(ctx context.Context, keyword string) ([]generic.Setting, error) {
	return txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) ([]generic.Setting, error) {
		return st.FindSettings(ctx, keyword)
	})
}

// ChangeSetting replaces the value of an existing setting. The business day
// goes through the calendar so it can only move forward.
func (s *SystemAdminService) ChangeSetting(ctx context.Context, actor generic.Actor, id, value string) (*generic.Setting, error) {
	if id == generic.SettingBusinessDay {
		day, err := generic.ParseDay(value)
		if err != nil {
			return nil, generic.NewFieldError("value", generic.ErrKeyDay, value)
		}
		err = s.deps.Runner.Tx().WriteLock(businessDayLock).Run(ctx, func(ctx context.Context, st generic.Store) error {
			return s.deps.Calendar.Advance(ctx, day)
		})
		if err != nil {
			return nil, err
		}
		s.deps.Log.Info("business day changed", zap.String("actor", actor.ID), zap.Stringer("day", day))
		return &generic.Setting{ID: id, Value: day.String()}, nil
	}

	err := s.deps.Runner.Tx().WriteLock(systemLockPrefix+id).Run(ctx, func(ctx context.Context, st generic.Store) error {
		_, ok, err := st.GetSetting(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return generic.NotFound("Setting", id)
		}
		return st.SetSetting(ctx, id, value)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info("setting changed", zap.String("actor", actor.ID), zap.String("id", id))
	return &generic.Setting{ID: id, Value: value}, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// ListHolidays returns the holidays of one year ordered by day.
func (s *SystemAdminService) ListHolidays(ctx context.Context, year int) ([]generic.Holiday, error) {
	return txn.Do(ctx, s.deps.Runner.Tx().ReadOnly(), func(ctx context.Context, st generic.Store) ([]generic.Holiday, error) {
		return st.ListHolidays(ctx, year)
	})
}

// RegisterHolidays upserts holidays and drops the cached holiday lookups.
// Entries without an ID get a fresh one; an empty category means the default.
func (s *SystemAdminService) RegisterHolidays(ctx context.Context, holidays []generic.Holiday) ([]generic.Holiday, error) {
	v := generic.NewValidator()
	for _, h := range holidays {
		v.CheckField(!h.Day.IsZero(), "day", generic.ErrKeyRequired)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	saved := make([]generic.Holiday, 0, len(holidays))
	for _, h := range holidays {
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		if h.Category == "" {
			h.Category = generic.HolidayCategoryDefault
		}
		saved = append(saved, h)
	}

	err := s.deps.Runner.Tx().Run(ctx, func(ctx context.Context, st generic.Store) error {
		for _, h := range saved {
			if err := st.SaveHoliday(ctx, h); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deps.Calendar.InvalidateHolidays()
	s.deps.Log.Info("holidays registered", zap.Int("count", len(saved)))
	return saved, nil
}

// DeleteHoliday removes one holiday and drops the cached holiday lookups.
func (s *SystemAdminService) DeleteHoliday(ctx context.Context, id string) error {
	err := s.deps.Runner.Tx().Run(ctx, func(ctx context.Context, st generic.Store) error {
		h, err := st.GetHoliday(ctx, id)
		if err != nil {
			return err
		}
		if h == nil {
			return generic.NotFound("Holiday", id)
		}
		return st.DeleteHoliday(ctx, id)
	})
	if err != nil {
		return err
	}
	s.deps.Calendar.InvalidateHolidays()
	return nil
}

// =============================================================================
// BANK ACCOUNTS
// =============================================================================

// RegisterFiAccount upserts a customer's bank account for a category and
// currency.
func (s *SystemAdminService) RegisterFiAccount(ctx context.Context, fa generic.FiAccount) (*generic.FiAccount, error) {
	v := generic.NewValidator()
	v.CheckField(fa.AccountID != "", "accountId", generic.ErrKeyRequired)
	v.CheckField(fa.Category != "", "category", generic.ErrKeyRequired)
	v.CheckField(fa.FiCode != "", "fiCode", generic.ErrKeyRequired)
	v.CheckField(fa.FiAccountID != "", "fiAccountId", generic.ErrKeyRequired)
	currency, err := generic.ParseCurrency(fa.Currency)
	v.CheckField(err == nil, "currency", generic.ErrKeyCurrency, fa.Currency)
	if err := v.Err(); err != nil {
		return nil, err
	}
	fa.Currency = currency

	err = s.deps.Runner.Tx().WriteLock(accountLock(fa.AccountID)).Run(ctx, func(ctx context.Context, st generic.Store) error {
		return st.SaveFiAccount(ctx, &fa)
	})
	if err != nil {
		return nil, err
	}
	return &fa, nil
}

// RegisterSelfFiAccount upserts the institution's settlement account for a
// category and currency.
func (s *SystemAdminService) RegisterSelfFiAccount(ctx context.Context, sa generic.SelfFiAccount) (*generic.SelfFiAccount, error) {
	v := generic.NewValidator()
	v.CheckField(sa.Category != "", "category", generic.ErrKeyRequired)
	v.CheckField(sa.FiCode != "", "fiCode", generic.ErrKeyRequired)
	v.CheckField(sa.FiAccountID != "", "fiAccountId", generic.ErrKeyRequired)
	currency, err := generic.ParseCurrency(sa.Currency)
	v.CheckField(err == nil, "currency", generic.ErrKeyCurrency, sa.Currency)
	if err := v.Err(); err != nil {
		return nil, err
	}
	sa.Currency = currency

	err = s.deps.Runner.Tx().Run(ctx, func(ctx context.Context, st generic.Store) error {
		return st.SaveSelfFiAccount(ctx, &sa)
	})
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

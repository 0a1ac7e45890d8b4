/*
Package calendar provides the business-day calendar.

PURPOSE:
  Answers "what is today" and "what is n business days from today" for the
  settlement engine. Today is a stored setting, moved forward only by the
  explicit day-advance operation; when the setting is absent the clock's
  date is used.

ALGORITHM:
  Day(n) steps one calendar day at a time in the sign of n, skipping
  weekends and holidays, until |n| business days are taken. Day(0) returns
  the current day as stored, even if it is itself a holiday.

CACHING:
  Holiday lookups go through HolidayCache. Anything that registers or
  removes a holiday must call InvalidateHolidays.

SEE ALSO:
  - service/system_admin.go: Day advance and holiday registration
  - generic/store.go: HolidayStore and SettingStore
*/
package calendar

import (
	"context"
	"fmt"

	"github.com/warp/settlement-engine/generic"
)

// maxSkip bounds the scan over consecutive non-business days.
const maxSkip = 3660

// BusinessDay computes business days from the stored current day.
type BusinessDay struct {
	store    generic.Store
	clock    Clock
	holidays *HolidayCache
}

func New(store generic.Store, clock Clock) *BusinessDay {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BusinessDay{store: store, clock: clock, holidays: NewHolidayCache()}
}

func (b *BusinessDay) Clock() Clock { return b.clock }

// CurrentDay returns the stored business day, or the clock's date when unset.
func (b *BusinessDay) CurrentDay(ctx context.Context) (generic.Day, error) {
	s := generic.StoreFrom(ctx, b.store)
	value, ok, err := s.GetSetting(ctx, generic.SettingBusinessDay)
	if err != nil {
		return generic.Day{}, err
	}
	if !ok || value == "" {
		return generic.DayOf(b.clock.Now()), nil
	}
	day, err := generic.ParseDay(value)
	if err != nil {
		return generic.Day{}, fmt.Errorf("setting %s: %w", generic.SettingBusinessDay, err)
	}
	return day, nil
}

// Day returns the business day n steps from the current day.
func (b *BusinessDay) Day(ctx context.Context, n int) (generic.Day, error) {
	current, err := b.CurrentDay(ctx)
	if err != nil {
		return generic.Day{}, err
	}
	return b.Shift(ctx, current, n)
}

// Shift returns the business day n steps from base.
func (b *BusinessDay) Shift(ctx context.Context, base generic.Day, n int) (generic.Day, error) {
	step := 1
	remaining := n
	if n < 0 {
		step = -1
		remaining = -n
	}

	day := base
	skipped := 0
	for remaining > 0 {
		day = day.AddDays(step)
		ok, err := b.IsBusinessDay(ctx, day)
		if err != nil {
			return generic.Day{}, err
		}
		if ok {
			remaining--
			skipped = 0
			continue
		}
		skipped++
		if skipped > maxSkip {
			return generic.Day{}, fmt.Errorf("no business day within %d days of %s", maxSkip, base)
		}
	}
	return day, nil
}

// IsBusinessDay reports whether day is neither a weekend nor a holiday.
func (b *BusinessDay) IsBusinessDay(ctx context.Context, day generic.Day) (bool, error) {
	if day.IsWeekend() {
		return false, nil
	}
	holiday, err := b.holidays.IsHoliday(ctx, generic.StoreFrom(ctx, b.store), day)
	if err != nil {
		return false, err
	}
	return !holiday, nil
}

// Advance persists day as the new current business day. Moving backwards is
// rejected; the same day is accepted.
func (b *BusinessDay) Advance(ctx context.Context, day generic.Day) error {
	current, err := b.CurrentDay(ctx)
	if err != nil {
		return err
	}
	if day.Before(current) {
		return generic.NewFieldError("day", generic.ErrKeyBusinessDayBackward, day.String(), current.String())
	}
	return generic.StoreFrom(ctx, b.store).SetSetting(ctx, generic.SettingBusinessDay, day.String())
}

// InvalidateHolidays must be called after the holiday set changes.
func (b *BusinessDay) InvalidateHolidays() {
	b.holidays.Invalidate()
}

// HolidayCache exposes the cache for inspection.
func (b *BusinessDay) HolidayCache() *HolidayCache { return b.holidays }

package calendar

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/generic/store"
)

func day(s string) generic.Day { return generic.MustParseDay(s) }

func newCalendar(t *testing.T, current string) (*BusinessDay, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	if current != "" {
		require.NoError(t, mem.SetSetting(context.Background(), generic.SettingBusinessDay, current))
	}
	clock := NewFixedClock(time.Date(2030, 6, 3, 9, 0, 0, 0, time.UTC))
	return New(mem, clock), mem
}

func TestCurrentDay_FallsBackToClock(t *testing.T) {
	cal, _ := newCalendar(t, "")

	got, err := cal.CurrentDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day("2030-06-03"), got)
}

func TestDay_SkipsWeekends(t *testing.T) {
	ctx := context.Background()

	// 2024-01-05 is a Friday
	cal, _ := newCalendar(t, "2024-01-05")

	next, err := cal.Day(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-08"), next)

	prev, err := cal.Day(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-04"), prev)

	third, err := cal.Day(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-10"), third)
}

func TestDay_ZeroReturnsStoredDayUnchecked(t *testing.T) {
	// GIVEN: The stored day is a Saturday
	cal, _ := newCalendar(t, "2024-01-06")

	// WHEN: Shifting by zero
	got, err := cal.Day(context.Background(), 0)

	// THEN: No skip-check is applied to the current day
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-06"), got)
}

func TestDay_SkipsHolidays(t *testing.T) {
	ctx := context.Background()
	cal, mem := newCalendar(t, "2024-01-05")
	require.NoError(t, mem.SaveHoliday(ctx, generic.Holiday{ID: "h1", Day: day("2024-01-08"), Name: "Coming of Age Day"}))

	next, err := cal.Day(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-09"), next)

	back, err := cal.Shift(ctx, day("2024-01-09"), -1)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-05"), back)
}

func TestHolidayCache_InvalidatedOnChange(t *testing.T) {
	ctx := context.Background()
	cal, mem := newCalendar(t, "2024-01-05")

	// GIVEN: Monday has been looked up as a business day
	next, err := cal.Day(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, day("2024-01-08"), next)
	require.Positive(t, cal.HolidayCache().Len())

	// WHEN: Monday becomes a holiday without invalidation
	require.NoError(t, mem.SaveHoliday(ctx, generic.Holiday{ID: "h1", Day: day("2024-01-08"), Name: "Coming of Age Day"}))
	stale, err := cal.Day(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-08"), stale, "cached answer is served until invalidated")

	// THEN: Invalidation picks the holiday up
	cal.InvalidateHolidays()
	assert.Zero(t, cal.HolidayCache().Len())
	fresh, err := cal.Day(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-09"), fresh)
}

// gatedHolidays answers IsHoliday only once released, or fails with the
// lookup context's error if that is cancelled first.
type gatedHolidays struct {
	generic.HolidayStore
	started chan struct{}
	release chan struct{}
}

func (g *gatedHolidays) IsHoliday(ctx context.Context, _ generic.Day) (bool, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-g.release:
		return true, nil
	}
}

func TestHolidayCache_CancelledWaiterDoesNotFailOthers(t *testing.T) {
	cache := NewHolidayCache()
	hs := &gatedHolidays{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := day("2024-01-08")

	// GIVEN: A first caller has started the shared lookup
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.IsHoliday(firstCtx, hs, d)
		firstErr <- err
	}()
	<-hs.started

	// AND: A second caller waits on the same day
	type result struct {
		holiday bool
		err     error
	}
	second := make(chan result, 1)
	go func() {
		h, err := cache.IsHoliday(context.Background(), hs, d)
		second <- result{h, err}
	}()

	// WHEN: The first caller gives up before the lookup completes
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(hs.release)

	// THEN: The second caller still gets the answer
	res := <-second
	require.NoError(t, res.err)
	assert.True(t, res.holiday)
}

func TestDay_NeverLandsOnNonBusinessDay(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		cal, mem := newCalendar(t, "2024-03-01")

		holidays := map[generic.Day]bool{}
		for i := 0; i < 15; i++ {
			d := day("2024-01-01").AddDays(rng.Intn(150))
			holidays[d] = true
			require.NoError(t, mem.SaveHoliday(ctx, generic.Holiday{ID: fmt.Sprintf("h%d", i), Day: d, Name: "random"}))
		}

		for n := -25; n <= 25; n++ {
			if n == 0 {
				continue
			}
			got, err := cal.Day(ctx, n)
			require.NoError(t, err)
			assert.False(t, got.IsWeekend(), "n=%d landed on weekend %s", n, got)
			assert.False(t, holidays[got], "n=%d landed on holiday %s", n, got)
		}
	}
}

func TestAdvance_RejectsBackward(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, "2024-01-05")

	err := cal.Advance(ctx, day("2024-01-04"))
	require.Error(t, err)
	assert.True(t, generic.IsValidation(err))

	require.NoError(t, cal.Advance(ctx, day("2024-01-05")))
	require.NoError(t, cal.Advance(ctx, day("2024-01-08")))

	got, err := cal.CurrentDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-08"), got)
}

func TestDay_ReadsThroughBoundStore(t *testing.T) {
	cal, mem := newCalendar(t, "2024-01-05")

	// Inside a memory transaction the store lock is held; reads must use the
	// bound view or they would block.
	err := mem.WithTx(context.Background(), generic.TxOptions{}, func(s generic.Store) error {
		ctx := generic.WithStore(context.Background(), s)
		if err := s.SetSetting(ctx, generic.SettingBusinessDay, "2024-01-08"); err != nil {
			return err
		}
		got, err := cal.Day(ctx, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, day("2024-01-09"), got)
		return nil
	})
	require.NoError(t, err)
}

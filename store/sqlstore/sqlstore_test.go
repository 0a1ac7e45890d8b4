/*
sqlstore_test.go - Tests for the SQLite dialect of the SQL store

Tests for:
- Balance insert/update round trip
- Cashflow and cash-in/out queries used by the batch jobs
- Admin filter paging
- Rollback on error inside WithTx
- Setting search and connection ping
- Placeholder rebinding for postgres
*/
package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/settlement-engine/generic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(s string) generic.Day { return generic.MustParseDay(s) }

func TestCashBalance_SaveAndCarryForward(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: No balance yet
	cb, err := store.GetCashBalance(ctx, "acct1", "JPY")
	require.NoError(t, err)
	assert.Nil(t, cb)

	// WHEN: Inserting then advancing the base day
	cb = &generic.CashBalance{AccountID: "acct1", Currency: "JPY", BaseDay: day("2024-01-04"), Amount: decimal.NewFromInt(1000)}
	require.NoError(t, store.SaveCashBalance(ctx, cb))
	require.NotZero(t, cb.ID)

	cb.BaseDay = day("2024-01-05")
	require.NoError(t, store.SaveCashBalance(ctx, cb))

	// THEN: One row, advanced in place
	got, err := store.GetCashBalance(ctx, "acct1", "JPY")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cb.ID, got.ID)
	assert.Equal(t, day("2024-01-05"), got.BaseDay)
	assert.True(t, decimal.NewFromInt(1000).Equal(got.Amount))
}

func TestCashflow_RealizableAndUnrealized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insert := func(valueDay string, amount int64, status generic.ActionStatus) *generic.Cashflow {
		cf := &generic.Cashflow{
			AccountID:    "acct1",
			Currency:     "JPY",
			Amount:       decimal.NewFromInt(amount),
			CashflowType: generic.CashflowCashIn,
			Remark:       generic.RemarkCashIn,
			EventDay:     day("2024-01-04"),
			ValueDay:     day(valueDay),
			StatusType:   status,
		}
		require.NoError(t, store.InsertCashflow(ctx, cf))
		return cf
	}

	due := insert("2024-01-04", 100, generic.StatusUnprocessed)
	insert("2024-01-05", 200, generic.StatusUnprocessed)
	insert("2024-01-04", 300, generic.StatusProcessed)

	realizable, err := store.FindRealizableCashflows(ctx, day("2024-01-04"), 0, 10)
	require.NoError(t, err)
	require.Len(t, realizable, 1)
	assert.Equal(t, due.ID, realizable[0].ID)
	assert.Equal(t, generic.CashflowCashIn, realizable[0].CashflowType)

	unrealized, err := store.FindUnrealizedCashflows(ctx, "acct1", "JPY", day("2024-01-05"))
	require.NoError(t, err)
	assert.Len(t, unrealized, 2)

	// Keyset cursor skips what was already read
	after, err := store.FindRealizableCashflows(ctx, day("2024-01-05"), due.ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.True(t, decimal.NewFromInt(200).Equal(after[0].Amount))
}

func TestCashInOut_UpdateAndClosable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cio := &generic.CashInOut{
		AccountID:         "acct1",
		Currency:          "JPY",
		AbsAmount:         decimal.NewFromInt(200),
		Withdrawal:        true,
		RequestDay:        day("2024-01-04"),
		EventDay:          day("2024-01-05"),
		ValueDay:          day("2024-01-09"),
		TargetFiCode:      "cashOut-JPY",
		TargetFiAccountID: "FIacct1",
		SelfFiCode:        "cashOut-JPY",
		SelfFiAccountID:   "xxxxxx",
		StatusType:        generic.StatusUnprocessed,
	}
	require.NoError(t, store.InsertCashInOut(ctx, cio))

	closable, err := store.FindClosableCashInOut(ctx, day("2024-01-04"), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, closable)

	closable, err = store.FindClosableCashInOut(ctx, day("2024-01-05"), 0, 10)
	require.NoError(t, err)
	require.Len(t, closable, 1)
	assert.True(t, closable[0].Withdrawal)
	assert.Nil(t, closable[0].CashflowID)

	pending, err := store.FindUnprocessedCashInOut(ctx, "acct1", "JPY", true)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// WHEN: Marking processed with a linked cashflow
	cf := &generic.Cashflow{
		AccountID:    "acct1",
		Currency:     "JPY",
		Amount:       decimal.NewFromInt(-200),
		CashflowType: generic.CashflowCashOut,
		Remark:       generic.RemarkCashOut,
		EventDay:     day("2024-01-05"),
		ValueDay:     day("2024-01-09"),
		StatusType:   generic.StatusUnprocessed,
	}
	require.NoError(t, store.InsertCashflow(ctx, cf))
	cio.StatusType = generic.StatusProcessed
	cio.CashflowID = &cf.ID
	cio.UpdateActor = "system"
	require.NoError(t, store.UpdateCashInOut(ctx, cio))

	got, err := store.LoadCashInOutForUpdate(ctx, cio.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, generic.StatusProcessed, got.StatusType)
	require.NotNil(t, got.CashflowID)
	assert.Equal(t, cf.ID, *got.CashflowID)

	pending, err = store.FindUnprocessedCashInOutByAccount(ctx, "acct1", true)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUpdateMissingRow_IsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateCashflow(context.Background(), &generic.Cashflow{ID: 999, StatusType: generic.StatusError})
	require.Error(t, err)
	assert.True(t, generic.IsNotFound(err))
}

func TestFindCashInOut_FilterAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, acct := range []string{"user-a1", "user-a2", "other", "user-a3"} {
		require.NoError(t, store.InsertCashInOut(ctx, &generic.CashInOut{
			AccountID:  acct,
			Currency:   "JPY",
			AbsAmount:  decimal.NewFromInt(10),
			Withdrawal: true,
			RequestDay: day("2024-01-04"),
			EventDay:   day("2024-01-05"),
			ValueDay:   day("2024-01-09"),
			StatusType: generic.StatusUnprocessed,
		}))
	}

	filter := generic.Filter{AccountID: "user-a", Statuses: []generic.ActionStatus{generic.StatusUnprocessed}, Limit: 2}
	first, err := store.FindCashInOut(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Total)
	require.Len(t, first.Items, 2)
	require.NotZero(t, first.NextCursor)

	filter.AfterID = first.NextCursor
	second, err := store.FindCashInOut(ctx, filter)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "user-a3", second.Items[0].AccountID)
	assert.Zero(t, second.NextCursor)

	outOfRange, err := store.FindCashInOut(ctx, generic.Filter{From: day("2024-02-01")})
	require.NoError(t, err)
	assert.Zero(t, outOfRange.Total)
	assert.Empty(t, outOfRange.Items)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, generic.TxOptions{}, func(s generic.Store) error {
		require.NoError(t, s.SetSetting(ctx, generic.SettingBusinessDay, "2024-01-04"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := store.GetSetting(ctx, generic.SettingBusinessDay)
	require.NoError(t, err)
	assert.False(t, ok, "setting must not survive rollback")

	require.NoError(t, store.WithTx(ctx, generic.TxOptions{}, func(s generic.Store) error {
		return s.SetSetting(ctx, generic.SettingBusinessDay, "2024-01-05")
	}))
	value, ok, err := store.GetSetting(ctx, generic.SettingBusinessDay)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-05", value)
}

func TestHolidays_SaveListDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h1", Day: day("2024-01-08"), Name: "Coming of Age Day"}))
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h2", Day: day("2024-01-01"), Name: "New Year"}))
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h3", Day: day("2025-01-01"), Name: "New Year"}))

	ok, err := store.IsHoliday(ctx, day("2024-01-08"))
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := store.ListHolidays(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h2", list[0].ID)
	assert.Equal(t, generic.HolidayCategoryDefault, list[0].Category)

	require.NoError(t, store.DeleteHoliday(ctx, "h1"))
	ok, err = store.IsHoliday(ctx, day("2024-01-08"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccounts_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fa := &generic.FiAccount{AccountID: "acct1", Category: generic.RemarkCashOut, Currency: "JPY", FiCode: "cashOut-JPY", FiAccountID: "FIacct1"}
	require.NoError(t, store.SaveFiAccount(ctx, fa))
	fa.FiAccountID = "FIacct1-new"
	require.NoError(t, store.SaveFiAccount(ctx, fa))

	got, err := store.GetFiAccount(ctx, "acct1", generic.RemarkCashOut, "JPY")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "FIacct1-new", got.FiAccountID)

	missing, err := store.GetSelfFiAccount(ctx, generic.RemarkCashOut, "USD")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindSettings_MatchesKeyLiterally(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetSetting(ctx, "ui_banner", "a"))
	require.NoError(t, store.SetSetting(ctx, "uiXbanner", "b"))
	require.NoError(t, store.SetSetting(ctx, generic.SettingBusinessDay, "2024-01-04"))

	found, err := store.FindSettings(ctx, "_banner")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, generic.Setting{ID: "ui_banner", Value: "a"}, found[0])

	all, err := store.FindSettings(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, generic.SettingBusinessDay, all[0].ID)
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	require.NoError(t, store.Close())
	err := store.Ping(ctx)
	assert.ErrorIs(t, err, generic.ErrInvocation)
}

func TestRebind(t *testing.T) {
	pg := dialect{name: DriverPostgres}
	lite := dialect{name: DriverSQLite}

	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
	assert.Equal(t, " FOR UPDATE", pg.forUpdate())
	assert.Empty(t, lite.forUpdate())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c`, escapeLike("a%b_c"))
}

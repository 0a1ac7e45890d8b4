/*
handlers_test.go - HTTP tests for the settlement API

Tests for:
- Full withdrawal lifecycle through the daily job endpoints
- Validation and not-found error mapping
- Admin filters
- Holiday registration
- Settings and health
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/settlement-engine/calendar"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/lock"
	"github.com/warp/settlement-engine/service"
	"github.com/warp/settlement-engine/store/sqlstore"
	"github.com/warp/settlement-engine/txn"
	"go.uber.org/zap"
)

type testServer struct {
	router http.Handler
	store  *sqlstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SetSetting(ctx, generic.SettingBusinessDay, "2024-01-04"))

	clock := calendar.NewFixedClock(time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC))
	deps := service.Deps{
		Runner:        txn.NewRunner(st, lock.NewRegistry()),
		Calendar:      calendar.New(st, clock),
		BatchPageSize: 10,
	}
	h := NewHandler(
		service.NewAssetService(deps),
		service.NewAssetAdminService(deps),
		service.NewSystemAdminService(deps),
		zap.NewNop(),
	)
	return &testServer{router: NewRouter(h), store: st}
}

func (s *testServer) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// customer registers bank accounts for acct and funds it with amount JPY.
func (s *testServer) customer(t *testing.T, acct string, amount int64) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/admin/accounts/self", "ops", SelfFiAccountRequest{
		Category: generic.RemarkCashOut, Currency: "JPY", FiCode: "9999", FiAccountID: "settlement",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/admin/accounts/fi", "ops", FiAccountRequest{
		AccountID: acct, Category: generic.RemarkCashOut, Currency: "JPY", FiCode: "0001", FiAccountID: "FI-" + acct,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, s.store.SaveCashBalance(context.Background(), &generic.CashBalance{
		AccountID: acct, Currency: "JPY", BaseDay: generic.MustParseDay("2024-01-04"), Amount: decimal.NewFromInt(amount),
	}))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestWithdrawalLifecycle(t *testing.T) {
	// GIVEN: A funded customer
	s := newTestServer(t)
	s.customer(t, "acct1", 1000)

	// WHEN: The customer withdraws 200
	rec := s.do(t, http.MethodPost, "/api/asset/cio/withdraw", "acct1", map[string]any{"currency": "JPY", "absAmount": "200"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[IDResponse](t, rec)
	assert.NotZero(t, created.ID)

	// THEN: It is pending with T+1 event day and T+3 value day
	rec = s.do(t, http.MethodGet, "/api/asset/cio/unprocessedOut", "acct1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]CashInOutDTO](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)
	assert.Equal(t, "2024-01-05", pending[0].EventDay.String())
	assert.Equal(t, "2024-01-09", pending[0].ValueDay.String())
	assert.Equal(t, "FI-acct1", pending[0].TargetFiAccountID)

	// WHEN: The event day arrives and closing runs
	rec = s.do(t, http.MethodPost, "/api/system/job/daily/processDay", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-05", decode[DayResponse](t, rec).Day.String())

	rec = s.do(t, http.MethodPost, "/api/system/job/daily/closingCashOut", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[service.BatchResult](t, rec)
	assert.Equal(t, 1, closed.Processed)
	assert.Equal(t, 0, closed.Failed)

	// AND: The value day arrives and realization runs
	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPost, "/api/system/job/daily/processDay", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/system/day", "", nil)
	assert.Equal(t, "2024-01-09", decode[DayResponse](t, rec).Day.String())

	rec = s.do(t, http.MethodPost, "/api/system/job/daily/realizeCashflow", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[service.BatchResult](t, rec).Processed)

	// THEN: The cashflow is processed and the balance debited
	rec = s.do(t, http.MethodGet, "/api/admin/asset/cf?accountId=acct1&status=processed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	flows := decode[PageDTO[CashflowDTO]](t, rec)
	require.Equal(t, 1, flows.Total)
	assert.True(t, decimal.NewFromInt(-200).Equal(flows.Items[0].Amount))

	cb, err := s.store.GetCashBalance(context.Background(), "acct1", "JPY")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(800).Equal(cb.Amount))

	rec = s.do(t, http.MethodGet, "/api/asset/cio/unprocessedOut", "acct1", nil)
	assert.Empty(t, decode[[]CashInOutDTO](t, rec))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestWithdraw_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	s.customer(t, "acct1", 1000)

	rec := s.do(t, http.MethodPost, "/api/asset/cio/withdraw", "acct1", map[string]any{"currency": "", "absAmount": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	warns := decode[[]generic.Warn](t, rec)
	fields := map[string]string{}
	for _, w := range warns {
		fields[w.Field] = w.Message
	}
	assert.Equal(t, generic.ErrKeyRequired, fields["currency"])
	assert.Equal(t, generic.ErrKeyAmountPositive, fields["absAmount"])

	rec = s.do(t, http.MethodPost, "/api/asset/cio/withdraw", "acct1", map[string]any{"currency": "JPY", "absAmount": "1001"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	warns = decode[[]generic.Warn](t, rec)
	require.NotEmpty(t, warns)
	assert.Equal(t, "absAmount", warns[0].Field)
	assert.Equal(t, generic.ErrKeyCashInOutWithdrawAmount, warns[0].Message)
}

func TestWithdraw_RequiresActor(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/asset/cio/withdraw", "", map[string]any{"currency": "JPY", "absAmount": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	warns := decode[[]generic.Warn](t, rec)
	require.Len(t, warns, 1)
	assert.Equal(t, ActorHeader, warns[0].Field)
}

func TestWithdraw_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/asset/cio/withdraw", bytes.NewBufferString("{not json"))
	req.Header.Set(ActorHeader, "acct1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancel_NotFoundAndForeignAccount(t *testing.T) {
	s := newTestServer(t)
	s.customer(t, "acct1", 1000)

	rec := s.do(t, http.MethodPost, "/api/admin/asset/cio/999/cancel", "ops", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/asset/cio/withdraw", "acct1", map[string]any{"currency": "JPY", "absAmount": "100"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[IDResponse](t, rec).ID

	rec = s.do(t, http.MethodPost, "/api/asset/cio/"+strconv.FormatInt(id, 10)+"/cancel", "intruder", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/asset/cio/"+strconv.FormatInt(id, 10)+"/cancel", "ops", CancelRequest{Reason: "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[CashInOutDTO](t, rec)
	assert.Equal(t, string(generic.StatusCancelled), cancelled.StatusType)
	assert.Equal(t, "duplicate", cancelled.StatusReason)
	assert.Equal(t, "ops", cancelled.UpdateActor)
}

func TestFindCashInOut_Filters(t *testing.T) {
	s := newTestServer(t)
	s.customer(t, "alpha-1", 1000)
	s.customer(t, "beta-1", 1000)
	for _, acct := range []string{"alpha-1", "alpha-1", "beta-1"} {
		rec := s.do(t, http.MethodPost, "/api/asset/cio/withdraw", acct, map[string]any{"currency": "JPY", "absAmount": "10"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/admin/asset/cio?accountId=alpha&from=2024-01-04&to=2024-01-04&limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[PageDTO[CashInOutDTO]](t, rec)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	require.NotZero(t, page.NextCursor)

	rec = s.do(t, http.MethodGet, "/api/admin/asset/cio?accountId=alpha&limit=1&cursor="+strconv.FormatInt(page.NextCursor, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[PageDTO[CashInOutDTO]](t, rec)
	require.Len(t, page.Items, 1)
	assert.Zero(t, page.NextCursor)

	rec = s.do(t, http.MethodGet, "/api/admin/asset/cio?status=BOGUS&from=yesterday", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[[]generic.Warn](t, rec), 2)
}

// =============================================================================
// SETTINGS AND HEALTH
// =============================================================================

func TestSettings(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/admin/settings?keyword=businessDay", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings := decode[[]SettingDTO](t, rec)
	require.Len(t, settings, 1)
	assert.Equal(t, SettingDTO{ID: generic.SettingBusinessDay, Value: "2024-01-04"}, settings[0])

	rec = s.do(t, http.MethodPost, "/api/admin/settings/"+generic.SettingBusinessDay, "ops", ChangeSettingRequest{Value: "2024-01-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodGet, "/api/system/day", "", nil)
	assert.Equal(t, "2024-01-10", decode[DayResponse](t, rec).Day.String())

	rec = s.do(t, http.MethodPost, "/api/admin/settings/"+generic.SettingBusinessDay, "ops", ChangeSettingRequest{Value: "2024-01-04"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/settings/ui.missing", "ops", ChangeSettingRequest{Value: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/settings/ui.missing", "ops", ChangeSettingRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "available", decode[HealthResponse](t, rec).Status)

	// GIVEN: The database is gone
	require.NoError(t, s.store.Close())

	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[HealthResponse](t, rec).Status)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidays(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/admin/holidays", "ops", RegisterHolidaysRequest{
		Holidays: []HolidayRequest{{ID: "h1", Day: "2024-01-05", Name: "Bank holiday"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/admin/holidays", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	holidays := decode[[]HolidayDTO](t, rec)
	require.Len(t, holidays, 1)
	assert.Equal(t, generic.HolidayCategoryDefault, holidays[0].Category)

	// The holiday is skipped when advancing
	rec = s.do(t, http.MethodPost, "/api/system/job/daily/processDay", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-08", decode[DayResponse](t, rec).Day.String())

	rec = s.do(t, http.MethodDelete, "/api/admin/holidays/h1", "ops", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/admin/holidays/h1", "ops", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/holidays", "ops", RegisterHolidaysRequest{
		Holidays: []HolidayRequest{{Day: "05/01/2024"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

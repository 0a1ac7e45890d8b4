/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the settlement services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to service/.

ENDPOINTS:
  Customer (actor = X-Actor-ID, required):
    POST   /api/asset/cio/withdraw           File a withdrawal
    GET    /api/asset/cio/unprocessedOut     Pending withdrawals, newest first
    POST   /api/asset/cio/{id}/cancel        Cancel own withdrawal before event day

  Admin (actor = X-Actor-ID, defaults to the system actor):
    GET    /api/admin/asset/cio              Cash-in/out page
    GET    /api/admin/asset/cf               Cashflow page
    POST   /api/admin/asset/cio/{id}/cancel  Cancel any request before event day
    GET    /api/admin/holidays               Holidays of ?year= (default: current)
    POST   /api/admin/holidays               Register holidays
    DELETE /api/admin/holidays/{id}          Remove a holiday
    POST   /api/admin/accounts/fi            Register a customer bank account
    POST   /api/admin/accounts/self          Register the settlement account
    GET    /api/admin/settings               Settings whose key contains ?keyword=
    POST   /api/admin/settings/{id}          Change an existing setting

  System:
    GET    /healthz                              Store availability
    GET    /api/system/day                       Current business day
    POST   /api/system/job/daily/processDay      Advance one business day
    POST   /api/system/job/daily/closingCashOut  Close due withdrawals
    POST   /api/system/job/daily/realizeCashflow Realize due cashflows

LIST FILTERS:
  accountId (substring), currency, status (comma separated), from, to
  (YYYY-MM-DD, inclusive), cursor (last id seen), limit.

ERROR HANDLING:
  - 400: Validation errors, body [{field, message, args}]
  - 404: Validation errors carrying the not-found key, same body
  - 500: Everything else, body {error}

SECURITY NOTE:
  There is no authentication. The actor header is trusted as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/service"
	"go.uber.org/zap"
)

// ActorHeader carries the acting user's ID.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Assets *service.AssetService
	Admin  *service.AssetAdminService
	System *service.SystemAdminService
	Log    *zap.Logger
}

func NewHandler(assets *service.AssetService, admin *service.AssetAdminService, system *service.SystemAdminService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Assets: assets, Admin: admin, System: system, Log: log}
}

func customerActor(r *http.Request) (generic.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return generic.Actor{}, generic.NewFieldError(ActorHeader, generic.ErrKeyRequired)
	}
	return generic.Actor{ID: id, Name: id, Role: generic.RoleUser}, nil
}

func operatorActor(r *http.Request) generic.Actor {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return generic.SystemActor
	}
	return generic.Actor{ID: id, Name: id, Role: generic.RoleAdmin}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// Withdraw files a withdrawal from the caller's account.
// POST /api/asset/cio/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, err := customerActor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req WithdrawRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	cio, err := h.Assets.Withdraw(r.Context(), actor, generic.RegCashOut{
		Currency:  req.Currency,
		AbsAmount: req.AbsAmount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: cio.ID})
}

// FindUnprocessedCashOut lists the caller's pending withdrawals.
// GET /api/asset/cio/unprocessedOut
func (h *Handler) FindUnprocessedCashOut(w http.ResponseWriter, r *http.Request) {
	actor, err := customerActor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items, err := h.Assets.FindUnprocessedCashOut(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashInOutDTOs(items))
}

// CancelCashOut cancels one of the caller's withdrawals.
// POST /api/asset/cio/{id}/cancel
func (h *Handler) CancelCashOut(w http.ResponseWriter, r *http.Request) {
	actor, err := customerActor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cio, err := h.Assets.CancelCashOut(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashInOutDTO(*cio))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// FindCashInOut returns one page of cash-in/out requests.
// GET /api/admin/asset/cio
func (h *Handler) FindCashInOut(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.Admin.FindCashInOut(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PageDTO[CashInOutDTO]{
		Items:      toCashInOutDTOs(page.Items),
		Total:      page.Total,
		NextCursor: page.NextCursor,
	})
}

// FindCashflows returns one page of cashflows.
// GET /api/admin/asset/cf
func (h *Handler) FindCashflows(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.Admin.FindCashflows(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PageDTO[CashflowDTO]{
		Items:      toCashflowDTOs(page.Items),
		Total:      page.Total,
		NextCursor: page.NextCursor,
	})
}

// CancelCashInOut cancels any request before its event day.
// POST /api/admin/asset/cio/{id}/cancel
func (h *Handler) CancelCashInOut(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CancelRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	cio, err := h.Admin.CancelCashInOut(r.Context(), operatorActor(r), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashInOutDTO(*cio))
}

// ListHolidays returns the holidays of one year.
// GET /api/admin/holidays?year=2024
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var year int
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, generic.NewFieldError("year", "error.year", raw))
			return
		}
		year = y
	} else {
		day, err := h.System.CurrentDay(ctx)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		year = day.Year()
	}

	holidays, err := h.System.ListHolidays(ctx, year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHolidayDTOs(holidays))
}

// RegisterHolidays upserts holidays.
// POST /api/admin/holidays
func (h *Handler) RegisterHolidays(w http.ResponseWriter, r *http.Request) {
	var req RegisterHolidaysRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	holidays := make([]generic.Holiday, len(req.Holidays))
	for i, hr := range req.Holidays {
		day, err := generic.ParseDay(hr.Day)
		if err != nil {
			h.writeError(w, r, generic.NewFieldError("holidays.day", "error.day", hr.Day))
			return
		}
		holidays[i] = generic.Holiday{ID: hr.ID, Category: hr.Category, Day: day, Name: hr.Name}
	}

	saved, err := h.System.RegisterHolidays(r.Context(), holidays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTOs(saved))
}

// DeleteHoliday removes one holiday.
// DELETE /api/admin/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.System.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FindSettings lists application settings.
// GET /api/admin/settings?keyword=businessDay
func (h *Handler) FindSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.System.FindSettings(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingDTOs(settings))
}

// ChangeSetting replaces the value of an existing setting.
// POST /api/admin/settings/{id}
func (h *Handler) ChangeSetting(w http.ResponseWriter, r *http.Request) {
	var req ChangeSettingRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	st, err := h.System.ChangeSetting(r.Context(), operatorActor(r), chi.URLParam(r, "id"), req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingDTO{ID: st.ID, Value: st.Value})
}

// RegisterFiAccount upserts a customer's bank account.
// POST /api/admin/accounts/fi
func (h *Handler) RegisterFiAccount(w http.ResponseWriter, r *http.Request) {
	var req FiAccountRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	fa, err := h.System.RegisterFiAccount(r.Context(), generic.FiAccount{
		AccountID:   req.AccountID,
		Category:    req.Category,
		Currency:    req.Currency,
		FiCode:      req.FiCode,
		FiAccountID: req.FiAccountID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: fa.ID})
}

// RegisterSelfFiAccount upserts the institution's settlement account.
// POST /api/admin/accounts/self
func (h *Handler) RegisterSelfFiAccount(w http.ResponseWriter, r *http.Request) {
	var req SelfFiAccountRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	sa, err := h.System.RegisterSelfFiAccount(r.Context(), generic.SelfFiAccount{
		Category:    req.Category,
		Currency:    req.Currency,
		FiCode:      req.FiCode,
		FiAccountID: req.FiAccountID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: sa.ID})
}

// =============================================================================
// SYSTEM HANDLERS
// =============================================================================

// CurrentDay returns the current business day.
// GET /api/system/day
func (h *Handler) CurrentDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.System.CurrentDay(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DayResponse{Day: day})
}

// Health reports whether the store answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.System.Health(r.Context()); err != nil {
		h.Log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "available"})
}

// ProcessDay advances the business day.
// POST /api/system/job/daily/processDay
func (h *Handler) ProcessDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.System.ProcessDay(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DayResponse{Day: day})
}

// CloseCashOut runs the withdrawal closing batch.
// POST /api/system/job/daily/closingCashOut
func (h *Handler) CloseCashOut(w http.ResponseWriter, r *http.Request) {
	result, err := h.Admin.CloseCashOut(r.Context(), operatorActor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RealizeCashflows runs the cashflow realization batch.
// POST /api/system/job/daily/realizeCashflow
func (h *Handler) RealizeCashflows(w http.ResponseWriter, r *http.Request) {
	result, err := h.Admin.RealizeCashflows(r.Context(), operatorActor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, generic.NewFieldError("id", "error.id", raw)
	}
	return id, nil
}

func parseFilter(q url.Values) (generic.Filter, error) {
	v := generic.NewValidator()
	f := generic.Filter{
		AccountID: strings.TrimSpace(q.Get("accountId")),
		Currency:  strings.ToUpper(strings.TrimSpace(q.Get("currency"))),
	}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := generic.ActionStatus(strings.ToUpper(strings.TrimSpace(s)))
			v.CheckField(status.Valid(), "status", "error.status", s)
			f.Statuses = append(f.Statuses, status)
		}
	}
	for field, dst := range map[string]*generic.Day{"from": &f.From, "to": &f.To} {
		if raw := q.Get(field); raw != "" {
			day, err := generic.ParseDay(raw)
			v.CheckField(err == nil, field, generic.ErrKeyDay, raw)
			*dst = day
		}
	}
	if raw := q.Get("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		v.CheckField(err == nil && n >= 0, "cursor", "error.cursor", raw)
		f.AfterID = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		v.CheckField(err == nil && n > 0, "limit", "error.limit", raw)
		f.Limit = n
	}

	if err := v.Err(); err != nil {
		return generic.Filter{}, err
	}
	return f.Normalized(), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status code. Validation failures are returned as
// the list of warnings; anything else is logged and hidden behind a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := generic.AsValidation(err); ok {
		status := http.StatusBadRequest
		if generic.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ve.Warns)
		return
	}

	h.Log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  domain types in generic/.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. decodeAndValidate turns
  tag failures into a *generic.ValidationError keyed by the JSON field name,
  so clients see the same [{field, message}] shape as domain rule failures.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// WithdrawRequest is the body of POST /api/asset/cio/withdraw.
type WithdrawRequest struct {
	Currency  string          `json:"currency" validate:"required,iso4217"`
	AbsAmount decimal.Decimal `json:"absAmount" validate:"decimal_positive"`
}

// CancelRequest is the optional body of the cancel endpoints.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=400"`
}

// HolidayRequest is one entry of POST /api/admin/holidays.
type HolidayRequest struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Day      string `json:"day" validate:"required,datetime=2006-01-02"`
	Name     string `json:"name" validate:"max=200"`
}

type RegisterHolidaysRequest struct {
	Holidays []HolidayRequest `json:"holidays" validate:"required,min=1,dive"`
}

// FiAccountRequest registers a customer's bank account.
type FiAccountRequest struct {
	AccountID   string `json:"accountId" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Currency    string `json:"currency" validate:"required,iso4217"`
	FiCode      string `json:"fiCode" validate:"required"`
	FiAccountID string `json:"fiAccountId" validate:"required"`
}

// ChangeSettingRequest replaces the value of one setting.
type ChangeSettingRequest struct {
	Value string `json:"value" validate:"required,max=4000"`
}

// SelfFiAccountRequest registers the institution's settlement account.
type SelfFiAccountRequest struct {
	Category    string `json:"category" validate:"required"`
	Currency    string `json:"currency" validate:"required,iso4217"`
	FiCode      string `json:"fiCode" validate:"required"`
	FiAccountID string `json:"fiAccountId" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type IDResponse struct {
	ID int64 `json:"id"`
}

type DayResponse struct {
	Day generic.Day `json:"day"`
}

// HealthResponse reports service availability, "available" or "degraded".
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for failures that are not validation errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CashInOutDTO represents a cash-in/out request in API responses.
type CashInOutDTO struct {
	ID                int64           `json:"id"`
	AccountID         string          `json:"accountId"`
	Currency          string          `json:"currency"`
	AbsAmount         decimal.Decimal `json:"absAmount"`
	Withdrawal        bool            `json:"withdrawal"`
	RequestDay        generic.Day     `json:"requestDay"`
	RequestDate       time.Time       `json:"requestDate"`
	EventDay          generic.Day     `json:"eventDay"`
	ValueDay          generic.Day     `json:"valueDay"`
	TargetFiCode      string          `json:"targetFiCode"`
	TargetFiAccountID string          `json:"targetFiAccountId"`
	SelfFiCode        string          `json:"selfFiCode"`
	SelfFiAccountID   string          `json:"selfFiAccountId"`
	StatusType        string          `json:"statusType"`
	StatusReason      string          `json:"statusReason,omitempty"`
	UpdateActor       string          `json:"updateActor"`
	UpdateDate        time.Time       `json:"updateDate"`
	CashflowID        *int64          `json:"cashflowId,omitempty"`
}

func toCashInOutDTO(c generic.CashInOut) CashInOutDTO {
	return CashInOutDTO{
		ID:                c.ID,
		AccountID:         c.AccountID,
		Currency:          c.Currency,
		AbsAmount:         c.AbsAmount,
		Withdrawal:        c.Withdrawal,
		RequestDay:        c.RequestDay,
		RequestDate:       c.RequestDate,
		EventDay:          c.EventDay,
		ValueDay:          c.ValueDay,
		TargetFiCode:      c.TargetFiCode,
		TargetFiAccountID: c.TargetFiAccountID,
		SelfFiCode:        c.SelfFiCode,
		SelfFiAccountID:   c.SelfFiAccountID,
		StatusType:        string(c.StatusType),
		StatusReason:      c.StatusReason,
		UpdateActor:       c.UpdateActor,
		UpdateDate:        c.UpdateDate,
		CashflowID:        c.CashflowID,
	}
}

func toCashInOutDTOs(items []generic.CashInOut) []CashInOutDTO {
	dtos := make([]CashInOutDTO, len(items))
	for i, c := range items {
		dtos[i] = toCashInOutDTO(c)
	}
	return dtos
}

// CashflowDTO represents a cashflow in API responses.
type CashflowDTO struct {
	ID           int64           `json:"id"`
	AccountID    string          `json:"accountId"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	CashflowType string          `json:"cashflowType"`
	Remark       string          `json:"remark"`
	EventDay     generic.Day     `json:"eventDay"`
	EventDate    time.Time       `json:"eventDate"`
	ValueDay     generic.Day     `json:"valueDay"`
	StatusType   string          `json:"statusType"`
	StatusReason string          `json:"statusReason,omitempty"`
	UpdateActor  string          `json:"updateActor"`
	UpdateDate   time.Time       `json:"updateDate"`
}

func toCashflowDTOs(items []generic.Cashflow) []CashflowDTO {
	dtos := make([]CashflowDTO, len(items))
	for i, cf := range items {
		dtos[i] = CashflowDTO{
			ID:           cf.ID,
			AccountID:    cf.AccountID,
			Currency:     cf.Currency,
			Amount:       cf.Amount,
			CashflowType: string(cf.CashflowType),
			Remark:       cf.Remark,
			EventDay:     cf.EventDay,
			EventDate:    cf.EventDate,
			ValueDay:     cf.ValueDay,
			StatusType:   string(cf.StatusType),
			StatusReason: cf.StatusReason,
			UpdateActor:  cf.UpdateActor,
			UpdateDate:   cf.UpdateDate,
		}
	}
	return dtos
}

// PageDTO wraps one page of a filtered listing.
type PageDTO[T any] struct {
	Items      []T   `json:"items"`
	Total      int   `json:"total"`
	NextCursor int64 `json:"nextCursor,omitempty"`
}

type HolidayDTO struct {
	ID       string      `json:"id"`
	Category string      `json:"category"`
	Day      generic.Day `json:"day"`
	Name     string      `json:"name"`
}

func toHolidayDTOs(items []generic.Holiday) []HolidayDTO {
	dtos := make([]HolidayDTO, len(items))
	for i, h := range items {
		dtos[i] = HolidayDTO{ID: h.ID, Category: h.Category, Day: h.Day, Name: h.Name}
	}
	return dtos
}

type SettingDTO struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func toSettingDTOs(items []generic.Setting) []SettingDTO {
	dtos := make([]SettingDTO, len(items))
	for i, st := range items {
		dtos[i] = SettingDTO{ID: st.ID, Value: st.Value}
	}
	return dtos
}

// =============================================================================
// VALIDATION
// =============================================================================

var (
	validate     *validator.Validate
	validateOnce sync.Once
	validateErr  error
)

func getValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		validateErr = v.RegisterValidation("decimal_positive", func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && d.IsPositive()
		})
		validate = v
	})
	return validate, validateErr
}

// tagMessages maps validator tags to error message keys.
var tagMessages = map[string]string{
	"required":         generic.ErrKeyRequired,
	"iso4217":          generic.ErrKeyCurrency,
	"decimal_positive": generic.ErrKeyAmountPositive,
}

func validateStruct(payload any) error {
	v, err := getValidator()
	if err != nil {
		return fmt.Errorf("validator init: %w", err)
	}
	err = v.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	warns := make([]generic.Warn, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		message, ok := tagMessages[fe.Tag()]
		if !ok {
			message = "error." + fe.Tag()
		}
		warn := generic.Warn{Field: fieldPath(fe), Message: message}
		if fe.Param() != "" {
			warn.Args = []any{fe.Param()}
		}
		warns = append(warns, warn)
	}
	return &generic.ValidationError{Warns: warns}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	_, rest, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Field()
	}
	return rest
}

// decodeAndValidate reads a JSON body into dst and validates it. An empty
// body is allowed when allowEmpty is set.
func decodeAndValidate(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		return generic.NewValidationError("error.body", err.Error())
	}
	return validateStruct(dst)
}

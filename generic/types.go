/*
Package generic provides the core types of the settlement engine.

PURPOSE:
  This package holds the plain data structures every other package speaks:
  balances, cashflows, withdrawal requests, holidays and the store
  interfaces that persist them. It contains no business rules; the state
  machines live in package asset and the use cases in package service.

KEY CONCEPTS IN THIS FILE (types.go):
  - CashBalance: settled balance of (account, currency) as of a base day
  - Cashflow: a signed movement that settles into the balance on its value day
  - CashInOut: a customer deposit/withdrawal request on its way to a cashflow
  - ActionStatus: the shared Unprocessed -> Processed|Cancelled|Error lifecycle

DESIGN PRINCIPLES:
  1. Precision: every amount is a decimal.Decimal, never a float
  2. Plain data: entities carry no persistence methods
  3. Explicit actors: who did something is passed in, never looked up

SEE ALSO:
  - time.go: Day type
  - money.go: currency scale and rounding
  - store.go: persistence interfaces
  - errors.go: validation and invocation errors
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACTION STATUS - Shared lifecycle of cashflows and cash-in/out requests
// =============================================================================

type ActionStatus string

const (
	StatusUnprocessed ActionStatus = "UNPROCESSED"
	StatusProcessed   ActionStatus = "PROCESSED"
	StatusCancelled   ActionStatus = "CANCELLED"
	StatusError       ActionStatus = "ERROR"
)

// IsUnprocessed reports whether the record can still transition.
func (s ActionStatus) IsUnprocessed() bool { return s == StatusUnprocessed }

// IsTerminal reports whether no further transition is allowed.
func (s ActionStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusCancelled || s == StatusError
}

func (s ActionStatus) Valid() bool {
	return s == StatusUnprocessed || s.IsTerminal()
}

// =============================================================================
// ACTOR - Who triggered an operation
// =============================================================================

type ActorRole string

const (
	RoleUser   ActorRole = "user"
	RoleAdmin  ActorRole = "admin"
	RoleSystem ActorRole = "system"
)

type Actor struct {
	ID   string
	Name string
	Role ActorRole
}

// SystemActor is used by batch jobs and schedulers.
var SystemActor = Actor{ID: "system", Name: "system", Role: RoleSystem}

// =============================================================================
// CASH BALANCE - Settled balance as of BaseDay
// =============================================================================

// CashBalance is the settled amount for one (AccountID, Currency).
// There is at most one record per key; BaseDay is carried forward in place.
type CashBalance struct {
	ID         int64
	AccountID  string
	Currency   string
	BaseDay    Day
	Amount     decimal.Decimal
	UpdateDate time.Time
}

// =============================================================================
// CASHFLOW - Signed movement that realizes into CashBalance on ValueDay
// =============================================================================

type CashflowType string

const (
	CashflowCashIn          CashflowType = "CASH_IN"
	CashflowCashOut         CashflowType = "CASH_OUT"
	CashflowCashTransferIn  CashflowType = "CASH_TRANSFER_IN"
	CashflowCashTransferOut CashflowType = "CASH_TRANSFER_OUT"
)

// Remarks used as cashflow remark and financial-institution account category.
const (
	RemarkCashIn  = "cashIn"
	RemarkCashOut = "cashOut"
)

type Cashflow struct {
	ID           int64
	AccountID    string
	Currency     string
	Amount       decimal.Decimal // positive = credit, negative = debit
	CashflowType CashflowType
	Remark       string
	EventDay     Day
	EventDate    time.Time
	ValueDay     Day
	StatusType   ActionStatus
	StatusReason string
	UpdateActor  string
	UpdateDate   time.Time
}

// RegCashflow is the input of cashflow registration.
// A zero EventDay means "the current business day".
type RegCashflow struct {
	AccountID    string
	Currency     string
	Amount       decimal.Decimal
	CashflowType CashflowType
	Remark       string
	EventDay     Day
	ValueDay     Day
}

// =============================================================================
// CASH IN/OUT - Deposit or withdrawal request
// =============================================================================

type CashInOut struct {
	ID                int64
	AccountID         string
	Currency          string
	AbsAmount         decimal.Decimal
	Withdrawal        bool
	RequestDay        Day
	RequestDate       time.Time
	EventDay          Day // request day + 1 business day
	ValueDay          Day // request day + 3 business days
	TargetFiCode      string
	TargetFiAccountID string
	SelfFiCode        string
	SelfFiAccountID   string
	StatusType        ActionStatus
	StatusReason      string
	UpdateActor       string
	UpdateDate        time.Time
	CashflowID        *int64
}

// RegCashOut is the input of a withdrawal request.
type RegCashOut struct {
	AccountID string
	Currency  string
	AbsAmount decimal.Decimal
}

// =============================================================================
// FINANCIAL INSTITUTION ACCOUNTS
// =============================================================================

// FiAccount is the customer's registered bank account for a category/currency.
type FiAccount struct {
	ID          int64
	AccountID   string
	Category    string
	Currency    string
	FiCode      string
	FiAccountID string
}

// SelfFiAccount is the institution's own settlement account.
type SelfFiAccount struct {
	ID          int64
	Category    string
	Currency    string
	FiCode      string
	FiAccountID string
}

// =============================================================================
// CALENDAR DATA
// =============================================================================

const HolidayCategoryDefault = "default"

type Holiday struct {
	ID       string
	Category string
	Day      Day
	Name     string
}

// SettingBusinessDay is the setting key holding the current business day.
const SettingBusinessDay = "system.businessDay.day"

// Setting is one application setting.
type Setting struct {
	ID    string
	Value string
}

// =============================================================================
// QUERIES
// =============================================================================

// Filter selects cashflows or cash-in/out records for admin queries.
// AccountID matches as a substring. From/To bound the request day
// (cash-in/out) or the value day (cashflow), both inclusive.
type Filter struct {
	AccountID string
	Currency  string
	Statuses  []ActionStatus
	From      Day
	To        Day
	AfterID   int64 // keyset cursor
	Limit     int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalized clamps the limit the same way every store does.
func (f Filter) Normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

// Page is one slice of a filtered result plus total-count metadata.
// NextCursor is zero when there is nothing more to read.
type Page[T any] struct {
	Items      []T
	Total      int
	NextCursor int64
}

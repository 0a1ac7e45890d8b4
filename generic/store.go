/*
store.go - Persistence interfaces for balances, cashflows and requests

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.
  The store is a plain repository: it never validates business rules.

KEY INTERFACES:
  BalanceStore:   One CashBalance per (account, currency)
  CashflowStore:  Cashflow rows and their queries
  CashInOutStore: Withdrawal/deposit requests and their queries
  AccountStore:   Customer and institution financial accounts
  HolidayStore:   Holiday set consumed by the business-day calendar
  SettingStore:   Key/value settings (current business day)
  TxStore:        Store plus transactional execution

NOT FOUND:
  Get* and Load*ForUpdate return (nil, nil) when the row does not exist.
  Callers decide whether absence is an error.

ROW LOCKS:
  Load*ForUpdate maps to SELECT ... FOR UPDATE where the backend supports
  it. It is a safety net beneath the in-process lock registry.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL over database/sql
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - txn/: Runs work inside WithTx and publishes the tx-bound store in ctx
*/
package generic

import (
	"context"
	"database/sql"
)

// =============================================================================
// STORE - Repository interfaces
// =============================================================================

type BalanceStore interface {
	GetCashBalance(ctx context.Context, accountID, currency string) (*CashBalance, error)

	// SaveCashBalance inserts when ID is zero (assigning ID) and updates otherwise.
	SaveCashBalance(ctx context.Context, cb *CashBalance) error
}

type CashflowStore interface {
	// InsertCashflow persists a new row and assigns cf.ID.
	InsertCashflow(ctx context.Context, cf *Cashflow) error
	UpdateCashflow(ctx context.Context, cf *Cashflow) error
	GetCashflow(ctx context.Context, id int64) (*Cashflow, error)
	LoadCashflowForUpdate(ctx context.Context, id int64) (*Cashflow, error)

	// FindUnrealizedCashflows returns Unprocessed rows of the account/currency
	// whose value day is on or before valueDay.
	FindUnrealizedCashflows(ctx context.Context, accountID, currency string, valueDay Day) ([]Cashflow, error)

	// FindRealizableCashflows returns up to limit Unprocessed rows with value day
	// on or before day and ID greater than afterID, ordered by ID.
	FindRealizableCashflows(ctx context.Context, day Day, afterID int64, limit int) ([]Cashflow, error)

	FindCashflows(ctx context.Context, filter Filter) (Page[Cashflow], error)
}

type CashInOutStore interface {
	// InsertCashInOut persists a new row and assigns cio.ID.
	InsertCashInOut(ctx context.Context, cio *CashInOut) error
	UpdateCashInOut(ctx context.Context, cio *CashInOut) error
	GetCashInOut(ctx context.Context, id int64) (*CashInOut, error)
	LoadCashInOutForUpdate(ctx context.Context, id int64) (*CashInOut, error)

	// FindUnprocessedCashInOut returns Unprocessed rows of the account/currency
	// in the given direction.
	FindUnprocessedCashInOut(ctx context.Context, accountID, currency string, withdrawal bool) ([]CashInOut, error)

	// FindUnprocessedCashInOutByAccount returns every Unprocessed row of the
	// account in the given direction, newest first.
	FindUnprocessedCashInOutByAccount(ctx context.Context, accountID string, withdrawal bool) ([]CashInOut, error)

	// FindClosableCashInOut returns up to limit Unprocessed rows with event day
	// on or before day and ID greater than afterID, ordered by ID.
	FindClosableCashInOut(ctx context.Context, day Day, afterID int64, limit int) ([]CashInOut, error)

	FindCashInOut(ctx context.Context, filter Filter) (Page[CashInOut], error)
}

type AccountStore interface {
	GetFiAccount(ctx context.Context, accountID, category, currency string) (*FiAccount, error)
	SaveFiAccount(ctx context.Context, fa *FiAccount) error
	GetSelfFiAccount(ctx context.Context, category, currency string) (*SelfFiAccount, error)
	SaveSelfFiAccount(ctx context.Context, sa *SelfFiAccount) error
}

type HolidayStore interface {
	IsHoliday(ctx context.Context, day Day) (bool, error)
	GetHoliday(ctx context.Context, id string) (*Holiday, error)

	// SaveHoliday upserts by ID.
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error

	// ListHolidays returns the holidays of one year ordered by day.
	ListHolidays(ctx context.Context, year int) ([]Holiday, error)
}

type SettingStore interface {
	// GetSetting returns ok=false when the key is absent.
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
	SetSetting(ctx context.Context, key, value string) error

	// FindSettings returns the settings whose key contains keyword, ordered
	// by key. An empty keyword matches every setting.
	FindSettings(ctx context.Context, keyword string) ([]Setting, error)
}

// Store is the full repository surface used by the domain.
type Store interface {
	BalanceStore
	CashflowStore
	CashInOutStore
	AccountStore
	HolidayStore
	SettingStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxOptions configures one transactional unit.
type TxOptions struct {
	ReadOnly  bool
	Isolation sql.IsolationLevel
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// Deadlines on ctx abort the transaction.
	WithTx(ctx context.Context, opts TxOptions, fn func(Store) error) error
}

// =============================================================================
// CONTEXT BINDING - Tx-bound store propagation
// =============================================================================

type storeKey struct{}

// WithStore binds the store of an open transaction to ctx.
func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// BoundStore returns the tx-bound store, if any.
func BoundStore(ctx context.Context) (Store, bool) {
	s, ok := ctx.Value(storeKey{}).(Store)
	return s, ok && s != nil
}

// StoreFrom returns the tx-bound store when one is open, otherwise fallback.
// Reads made while a transaction is open must go through it, or a
// single-connection backend would wait on itself.
func StoreFrom(ctx context.Context, fallback Store) Store {
	if s, ok := BoundStore(ctx); ok {
		return s
	}
	return fallback
}

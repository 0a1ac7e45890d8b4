// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a memState with a RWMutex. Every method takes the lock; the
// transactional view handed out by TxMemory.WithTx runs under the write lock
// and calls memState directly.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type balanceKey struct {
	AccountID string
	Currency  string
}

type fiKey struct {
	AccountID string
	Category  string
	Currency  string
}

type selfFiKey struct {
	Category string
	Currency string
}

type memState struct {
	balances   map[balanceKey]generic.CashBalance
	cashflows  map[int64]generic.Cashflow
	cashInOuts map[int64]generic.CashInOut
	fiAccounts map[fiKey]generic.FiAccount
	selfFi     map[selfFiKey]generic.SelfFiAccount
	holidays   map[string]generic.Holiday
	settings   map[string]string
	seq        int64
}

func newMemState() *memState {
	return &memState{
		balances:   make(map[balanceKey]generic.CashBalance),
		cashflows:  make(map[int64]generic.Cashflow),
		cashInOuts: make(map[int64]generic.CashInOut),
		fiAccounts: make(map[fiKey]generic.FiAccount),
		selfFi:     make(map[selfFiKey]generic.SelfFiAccount),
		holidays:   make(map[string]generic.Holiday),
		settings:   make(map[string]string),
	}
}

var (
	_ generic.Store   = (*Memory)(nil)
	_ generic.Store   = (*memState)(nil)
	_ generic.TxStore = (*TxMemory)(nil)
)

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) read(fn func(s *memState)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.state)
}

func (m *Memory) write(fn func(s *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

// Balances

func (m *Memory) GetCashBalance(ctx context.Context, accountID, currency string) (cb *generic.CashBalance, err error) {
	m.read(func(s *memState) { cb, err = s.GetCashBalance(ctx, accountID, currency) })
	return cb, err
}

func (m *Memory) SaveCashBalance(ctx context.Context, cb *generic.CashBalance) error {
	return m.write(func(s *memState) error { return s.SaveCashBalance(ctx, cb) })
}

// Cashflows

func (m *Memory) InsertCashflow(ctx context.Context, cf *generic.Cashflow) error {
	return m.write(func(s *memState) error { return s.InsertCashflow(ctx, cf) })
}

func (m *Memory) UpdateCashflow(ctx context.Context, cf *generic.Cashflow) error {
	return m.write(func(s *memState) error { return s.UpdateCashflow(ctx, cf) })
}

func (m *Memory) GetCashflow(ctx context.Context, id int64) (cf *generic.Cashflow, err error) {
	m.read(func(s *memState) { cf, err = s.GetCashflow(ctx, id) })
	return cf, err
}

func (m *Memory) LoadCashflowForUpdate(ctx context.Context, id int64) (*generic.Cashflow, error) {
	return m.GetCashflow(ctx, id)
}

func (m *Memory) FindUnrealizedCashflows(ctx context.Context, accountID, currency string, valueDay generic.Day) (out []generic.Cashflow, err error) {
	m.read(func(s *memState) { out, err = s.FindUnrealizedCashflows(ctx, accountID, currency, valueDay) })
	return out, err
}

func (m *Memory) FindRealizableCashflows(ctx context.Context, day generic.Day, afterID int64, limit int) (out []generic.Cashflow, err error) {
	m.read(func(s *memState) { out, err = s.FindRealizableCashflows(ctx, day, afterID, limit) })
	return out, err
}

func (m *Memory) FindCashflows(ctx context.Context, filter generic.Filter) (page generic.Page[generic.Cashflow], err error) {
	m.read(func(s *memState) { page, err = s.FindCashflows(ctx, filter) })
	return page, err
}

// Cash in/out

func (m *Memory) InsertCashInOut(ctx context.Context, cio *generic.CashInOut) error {
	return m.write(func(s *memState) error { return s.InsertCashInOut(ctx, cio) })
}

func (m *Memory) UpdateCashInOut(ctx context.Context, cio *generic.CashInOut) error {
	return m.write(func(s *memState) error { return s.UpdateCashInOut(ctx, cio) })
}

func (m *Memory) GetCashInOut(ctx context.Context, id int64) (cio *generic.CashInOut, err error) {
	m.read(func(s *memState) { cio, err = s.GetCashInOut(ctx, id) })
	return cio, err
}

func (m *Memory) LoadCashInOutForUpdate(ctx context.Context, id int64) (*generic.CashInOut, error) {
	return m.GetCashInOut(ctx, id)
}

func (m *Memory) FindUnprocessedCashInOut(ctx context.Context, accountID, currency string, withdrawal bool) (out []generic.CashInOut, err error) {
	m.read(func(s *memState) { out, err = s.FindUnprocessedCashInOut(ctx, accountID, currency, withdrawal) })
	return out, err
}

func (m *Memory) FindUnprocessedCashInOutByAccount(ctx context.Context, accountID string, withdrawal bool) (out []generic.CashInOut, err error) {
	m.read(func(s *memState) { out, err = s.FindUnprocessedCashInOutByAccount(ctx, accountID, withdrawal) })
	return out, err
}

func (m *Memory) FindClosableCashInOut(ctx context.Context, day generic.Day, afterID int64, limit int) (out []generic.CashInOut, err error) {
	m.read(func(s *memState) { out, err = s.FindClosableCashInOut(ctx, day, afterID, limit) })
	return out, err
}

func (m *Memory) FindCashInOut(ctx context.Context, filter generic.Filter) (page generic.Page[generic.CashInOut], err error) {
	m.read(func(s *memState) { page, err = s.FindCashInOut(ctx, filter) })
	return page, err
}

// Accounts

func (m *Memory) GetFiAccount(ctx context.Context, accountID, category, currency string) (fa *generic.FiAccount, err error) {
	m.read(func(s *memState) { fa, err = s.GetFiAccount(ctx, accountID, category, currency) })
	return fa, err
}

func (m *Memory) SaveFiAccount(ctx context.Context, fa *generic.FiAccount) error {
	return m.write(func(s *memState) error { return s.SaveFiAccount(ctx, fa) })
}

func (m *Memory) GetSelfFiAccount(ctx context.Context, category, currency string) (sa *generic.SelfFiAccount, err error) {
	m.read(func(s *memState) { sa, err = s.GetSelfFiAccount(ctx, category, currency) })
	return sa, err
}

func (m *Memory) SaveSelfFiAccount(ctx context.Context, sa *generic.SelfFiAccount) error {
	return m.write(func(s *memState) error { return s.SaveSelfFiAccount(ctx, sa) })
}

// Holidays

func (m *Memory) IsHoliday(ctx context.Context, day generic.Day) (ok bool, err error) {
	m.read(func(s *memState) { ok, err = s.IsHoliday(ctx, day) })
	return ok, err
}

func (m *Memory) GetHoliday(ctx context.Context, id string) (h *generic.Holiday, err error) {
	m.read(func(s *memState) { h, err = s.GetHoliday(ctx, id) })
	return h, err
}

func (m *Memory) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	return m.write(func(s *memState) error { return s.SaveHoliday(ctx, h) })
}

func (m *Memory) DeleteHoliday(ctx context.Context, id string) error {
	return m.write(func(s *memState) error { return s.DeleteHoliday(ctx, id) })
}

func (m *Memory) ListHolidays(ctx context.Context, year int) (out []generic.Holiday, err error) {
	m.read(func(s *memState) { out, err = s.ListHolidays(ctx, year) })
	return out, err
}

// Settings

func (m *Memory) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	m.read(func(s *memState) { value, ok, err = s.GetSetting(ctx, key) })
	return value, ok, err
}

func (m *Memory) SetSetting(ctx context.Context, key, value string) error {
	return m.write(func(s *memState) error { return s.SetSetting(ctx, key, value) })
}

func (m *Memory) FindSettings(ctx context.Context, keyword string) (out []generic.Setting, err error) {
	m.read(func(s *memState) { out, err = s.FindSettings(ctx, keyword) })
	return out, err
}

// =============================================================================
// STATE - Unlocked operations shared by Memory and the transactional view
// =============================================================================

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *memState) GetCashBalance(_ context.Context, accountID, currency string) (*generic.CashBalance, error) {
	cb, ok := s.balances[balanceKey{AccountID: accountID, Currency: currency}]
	if !ok {
		return nil, nil
	}
	return &cb, nil
}

func (s *memState) SaveCashBalance(_ context.Context, cb *generic.CashBalance) error {
	if cb.ID == 0 {
		cb.ID = s.nextID()
	}
	s.balances[balanceKey{AccountID: cb.AccountID, Currency: cb.Currency}] = *cb
	return nil
}

func (s *memState) InsertCashflow(_ context.Context, cf *generic.Cashflow) error {
	cf.ID = s.nextID()
	s.cashflows[cf.ID] = *cf
	return nil
}

func (s *memState) UpdateCashflow(_ context.Context, cf *generic.Cashflow) error {
	if _, ok := s.cashflows[cf.ID]; !ok {
		return generic.NotFound("Cashflow", cf.ID)
	}
	s.cashflows[cf.ID] = *cf
	return nil
}

func (s *memState) GetCashflow(_ context.Context, id int64) (*generic.Cashflow, error) {
	cf, ok := s.cashflows[id]
	if !ok {
		return nil, nil
	}
	return &cf, nil
}

func (s *memState) LoadCashflowForUpdate(ctx context.Context, id int64) (*generic.Cashflow, error) {
	return s.GetCashflow(ctx, id)
}

func (s *memState) FindUnrealizedCashflows(_ context.Context, accountID, currency string, valueDay generic.Day) ([]generic.Cashflow, error) {
	return s.selectCashflows(func(cf generic.Cashflow) bool {
		return cf.AccountID == accountID && cf.Currency == currency &&
			cf.StatusType.IsUnprocessed() && cf.ValueDay.BeforeOrEqual(valueDay)
	}), nil
}

func (s *memState) FindRealizableCashflows(_ context.Context, day generic.Day, afterID int64, limit int) ([]generic.Cashflow, error) {
	out := s.selectCashflows(func(cf generic.Cashflow) bool {
		return cf.ID > afterID && cf.StatusType.IsUnprocessed() && cf.ValueDay.BeforeOrEqual(day)
	})
	return head(out, limit), nil
}

func (s *memState) FindCashflows(_ context.Context, filter generic.Filter) (generic.Page[generic.Cashflow], error) {
	f := filter.Normalized()
	all := s.selectCashflows(func(cf generic.Cashflow) bool {
		return matches(f, cf.AccountID, cf.Currency, cf.StatusType, cf.ValueDay)
	})
	return paginate(all, f, func(cf generic.Cashflow) int64 { return cf.ID }), nil
}

func (s *memState) selectCashflows(pred func(generic.Cashflow) bool) []generic.Cashflow {
	var out []generic.Cashflow
	for _, cf := range s.cashflows {
		if pred(cf) {
			out = append(out, cf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memState) InsertCashInOut(_ context.Context, cio *generic.CashInOut) error {
	cio.ID = s.nextID()
	s.cashInOuts[cio.ID] = cloneCashInOut(*cio)
	return nil
}

func (s *memState) UpdateCashInOut(_ context.Context, cio *generic.CashInOut) error {
	if _, ok := s.cashInOuts[cio.ID]; !ok {
		return generic.NotFound("CashInOut", cio.ID)
	}
	s.cashInOuts[cio.ID] = cloneCashInOut(*cio)
	return nil
}

func (s *memState) GetCashInOut(_ context.Context, id int64) (*generic.CashInOut, error) {
	cio, ok := s.cashInOuts[id]
	if !ok {
		return nil, nil
	}
	c := cloneCashInOut(cio)
	return &c, nil
}

func (s *memState) LoadCashInOutForUpdate(ctx context.Context, id int64) (*generic.CashInOut, error) {
	return s.GetCashInOut(ctx, id)
}

func (s *memState) FindUnprocessedCashInOut(_ context.Context, accountID, currency string, withdrawal bool) ([]generic.CashInOut, error) {
	return s.selectCashInOut(func(c generic.CashInOut) bool {
		return c.AccountID == accountID && c.Currency == currency &&
			c.Withdrawal == withdrawal && c.StatusType.IsUnprocessed()
	}), nil
}

func (s *memState) FindUnprocessedCashInOutByAccount(_ context.Context, accountID string, withdrawal bool) ([]generic.CashInOut, error) {
	out := s.selectCashInOut(func(c generic.CashInOut) bool {
		return c.AccountID == accountID && c.Withdrawal == withdrawal && c.StatusType.IsUnprocessed()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memState) FindClosableCashInOut(_ context.Context, day generic.Day, afterID int64, limit int) ([]generic.CashInOut, error) {
	out := s.selectCashInOut(func(c generic.CashInOut) bool {
		return c.ID > afterID && c.StatusType.IsUnprocessed() && c.EventDay.BeforeOrEqual(day)
	})
	return head(out, limit), nil
}

func (s *memState) FindCashInOut(_ context.Context, filter generic.Filter) (generic.Page[generic.CashInOut], error) {
	f := filter.Normalized()
	all := s.selectCashInOut(func(c generic.CashInOut) bool {
		return matches(f, c.AccountID, c.Currency, c.StatusType, c.RequestDay)
	})
	return paginate(all, f, func(c generic.CashInOut) int64 { return c.ID }), nil
}

func (s *memState) selectCashInOut(pred func(generic.CashInOut) bool) []generic.CashInOut {
	var out []generic.CashInOut
	for _, c := range s.cashInOuts {
		if pred(c) {
			out = append(out, cloneCashInOut(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneCashInOut(c generic.CashInOut) generic.CashInOut {
	if c.CashflowID != nil {
		id := *c.CashflowID
		c.CashflowID = &id
	}
	return c
}

func (s *memState) GetFiAccount(_ context.Context, accountID, category, currency string) (*generic.FiAccount, error) {
	fa, ok := s.fiAccounts[fiKey{AccountID: accountID, Category: category, Currency: currency}]
	if !ok {
		return nil, nil
	}
	return &fa, nil
}

func (s *memState) SaveFiAccount(_ context.Context, fa *generic.FiAccount) error {
	k := fiKey{AccountID: fa.AccountID, Category: fa.Category, Currency: fa.Currency}
	if existing, ok := s.fiAccounts[k]; ok {
		fa.ID = existing.ID
	} else if fa.ID == 0 {
		fa.ID = s.nextID()
	}
	s.fiAccounts[k] = *fa
	return nil
}

func (s *memState) GetSelfFiAccount(_ context.Context, category, currency string) (*generic.SelfFiAccount, error) {
	sa, ok := s.selfFi[selfFiKey{Category: category, Currency: currency}]
	if !ok {
		return nil, nil
	}
	return &sa, nil
}

func (s *memState) SaveSelfFiAccount(_ context.Context, sa *generic.SelfFiAccount) error {
	k := selfFiKey{Category: sa.Category, Currency: sa.Currency}
	if existing, ok := s.selfFi[k]; ok {
		sa.ID = existing.ID
	} else if sa.ID == 0 {
		sa.ID = s.nextID()
	}
	s.selfFi[k] = *sa
	return nil
}

func (s *memState) IsHoliday(_ context.Context, day generic.Day) (bool, error) {
	for _, h := range s.holidays {
		if h.Day.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) GetHoliday(_ context.Context, id string) (*generic.Holiday, error) {
	h, ok := s.holidays[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *memState) SaveHoliday(_ context.Context, h generic.Holiday) error {
	s.holidays[h.ID] = h
	return nil
}

func (s *memState) DeleteHoliday(_ context.Context, id string) error {
	delete(s.holidays, id)
	return nil
}

func (s *memState) ListHolidays(_ context.Context, year int) ([]generic.Holiday, error) {
	var out []generic.Holiday
	for _, h := range s.holidays {
		if h.Day.Year() == year {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *memState) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *memState) SetSetting(_ context.Context, key, value string) error {
	s.settings[key] = value
	return nil
}

func (s *memState) FindSettings(_ context.Context, keyword string) ([]generic.Setting, error) {
	var out []generic.Setting
	for k, v := range s.settings {
		if strings.Contains(k, keyword) {
			out = append(out, generic.Setting{ID: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func matches(f generic.Filter, accountID, currency string, status generic.ActionStatus, day generic.Day) bool {
	if f.AccountID != "" && !strings.Contains(accountID, f.AccountID) {
		return false
	}
	if f.Currency != "" && f.Currency != currency {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && day.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && day.After(f.To) {
		return false
	}
	return true
}

// paginate expects items sorted by ID ascending.
func paginate[T any](all []T, f generic.Filter, id func(T) int64) generic.Page[T] {
	page := generic.Page[T]{Total: len(all), Items: []T{}}
	for _, item := range all {
		if id(item) <= f.AfterID {
			continue
		}
		if len(page.Items) == f.Limit {
			page.NextCursor = id(page.Items[len(page.Items)-1])
			break
		}
		page.Items = append(page.Items, item)
	}
	return page
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized; a deadline that expires while fn runs rolls
// the work back.
func (tm *TxMemory) WithTx(ctx context.Context, _ generic.TxOptions, fn func(generic.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.clone()
	defer func() {
		if p := recover(); p != nil {
			tm.state = snapshot
			panic(p)
		}
	}()

	if err := fn(tm.state); err != nil {
		tm.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.cashflows {
		c.cashflows[k] = v
	}
	for k, v := range s.cashInOuts {
		c.cashInOuts[k] = cloneCashInOut(v)
	}
	for k, v := range s.fiAccounts {
		c.fiAccounts[k] = v
	}
	for k, v := range s.selfFi {
		c.selfFi[k] = v
	}
	for k, v := range s.holidays {
		c.holidays[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	c.seq = s.seq
	return c
}

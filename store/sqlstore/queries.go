package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// CASH BALANCE STORE
// =============================================================================

func (c *conn) GetCashBalance(ctx context.Context, accountID, currency string) (*generic.CashBalance, error) {
	query := `
		SELECT id, account_id, currency, base_day, amount, update_date
		FROM cash_balances
		WHERE account_id = ? AND currency = ?
	`

	var cb generic.CashBalance
	err := c.q.QueryRowContext(ctx, c.d.rebind(query), accountID, currency).Scan(
		&cb.ID, &cb.AccountID, &cb.Currency, &cb.BaseDay, &cb.Amount, &cb.UpdateDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.NewInvocationError("sqlstore.GetCashBalance", err)
	}
	return &cb, nil
}

func (c *conn) SaveCashBalance(ctx context.Context, cb *generic.CashBalance) error {
	cb.UpdateDate = now()

	if cb.ID == 0 {
		id, err := c.insert(ctx, "sqlstore.SaveCashBalance", `
			INSERT INTO cash_balances (account_id, currency, base_day, amount, update_date)
			VALUES (?, ?, ?, ?, ?)`,
			cb.AccountID, cb.Currency, cb.BaseDay, cb.Amount, cb.UpdateDate,
		)
		if err != nil {
			return err
		}
		cb.ID = id
		return nil
	}

	res, err := c.exec(ctx, "sqlstore.SaveCashBalance", `
		UPDATE cash_balances SET base_day = ?, amount = ?, update_date = ?
		WHERE id = ?`,
		cb.BaseDay, cb.Amount, cb.UpdateDate, cb.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, "CashBalance", cb.ID)
}

// =============================================================================
// CASHFLOW STORE
// =============================================================================

const cashflowColumns = `id, account_id, currency, amount, cashflow_type, remark,
	event_day, event_date, value_day, status_type, status_reason, update_actor, update_date`

func (c *conn) InsertCashflow(ctx context.Context, cf *generic.Cashflow) error {
	cf.UpdateDate = now()
	if cf.EventDate.IsZero() {
		cf.EventDate = cf.UpdateDate
	}

	id, err := c.insert(ctx, "sqlstore.InsertCashflow", `
		INSERT INTO cashflows
		(account_id, currency, amount, cashflow_type, remark, event_day, event_date,
		 value_day, status_type, status_reason, update_actor, update_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cf.AccountID, cf.Currency, cf.Amount, string(cf.CashflowType), nullString(cf.Remark),
		cf.EventDay, cf.EventDate, cf.ValueDay, string(cf.StatusType),
		nullString(cf.StatusReason), nullString(cf.UpdateActor), cf.UpdateDate,
	)
	if err != nil {
		return err
	}
	cf.ID = id
	return nil
}

func (c *conn) UpdateCashflow(ctx context.Context, cf *generic.Cashflow) error {
	cf.UpdateDate = now()

	res, err := c.exec(ctx, "sqlstore.UpdateCashflow", `
		UPDATE cashflows
		SET status_type = ?, status_reason = ?, update_actor = ?, update_date = ?
		WHERE id = ?`,
		string(cf.StatusType), nullString(cf.StatusReason), nullString(cf.UpdateActor),
		cf.UpdateDate, cf.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, "Cashflow", cf.ID)
}

func (c *conn) GetCashflow(ctx context.Context, id int64) (*generic.Cashflow, error) {
	return c.getCashflow(ctx, "sqlstore.GetCashflow", id, "")
}

func (c *conn) LoadCashflowForUpdate(ctx context.Context, id int64) (*generic.Cashflow, error) {
	return c.getCashflow(ctx, "sqlstore.LoadCashflowForUpdate", id, c.d.forUpdate())
}

func (c *conn) getCashflow(ctx context.Context, op string, id int64, lock string) (*generic.Cashflow, error) {
	items, err := c.queryCashflows(ctx, op,
		"SELECT "+cashflowColumns+" FROM cashflows WHERE id = ?"+lock, id)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (c *conn) FindUnrealizedCashflows(ctx context.Context, accountID, currency string, valueDay generic.Day) ([]generic.Cashflow, error) {
	return c.queryCashflows(ctx, "sqlstore.FindUnrealizedCashflows", `
		SELECT `+cashflowColumns+` FROM cashflows
		WHERE account_id = ? AND currency = ? AND status_type = ? AND value_day <= ?
		ORDER BY id`,
		accountID, currency, string(generic.StatusUnprocessed), valueDay,
	)
}

func (c *conn) FindRealizableCashflows(ctx context.Context, day generic.Day, afterID int64, limit int) ([]generic.Cashflow, error) {
	return c.queryCashflows(ctx, "sqlstore.FindRealizableCashflows", `
		SELECT `+cashflowColumns+` FROM cashflows
		WHERE status_type = ? AND value_day <= ? AND id > ?
		ORDER BY id
		LIMIT ?`,
		string(generic.StatusUnprocessed), day, afterID, limit,
	)
}

func (c *conn) FindCashflows(ctx context.Context, filter generic.Filter) (generic.Page[generic.Cashflow], error) {
	f := filter.Normalized()
	where, args := filterClause(f, "value_day")

	var page generic.Page[generic.Cashflow]
	if err := c.count(ctx, "sqlstore.FindCashflows", "cashflows", where, args, &page.Total); err != nil {
		return page, err
	}

	items, err := c.queryCashflows(ctx, "sqlstore.FindCashflows",
		"SELECT "+cashflowColumns+" FROM cashflows"+where+pageClause(where),
		append(args, f.AfterID, f.Limit+1)...)
	if err != nil {
		return page, err
	}
	page.Items, page.NextCursor = trimPage(items, f.Limit, func(cf generic.Cashflow) int64 { return cf.ID })
	return page, nil
}

func (c *conn) queryCashflows(ctx context.Context, op, query string, args ...any) ([]generic.Cashflow, error) {
	rows, err := c.q.QueryContext(ctx, c.d.rebind(query), args...)
	if err != nil {
		return nil, generic.NewInvocationError(op, err)
	}
	defer rows.Close()

	var out []generic.Cashflow
	for rows.Next() {
		var (
			cf                          generic.Cashflow
			cfType, status              string
			remark, reason, updateActor sql.NullString
		)
		if err := rows.Scan(
			&cf.ID, &cf.AccountID, &cf.Currency, &cf.Amount, &cfType, &remark,
			&cf.EventDay, &cf.EventDate, &cf.ValueDay, &status, &reason, &updateActor, &cf.UpdateDate,
		); err != nil {
			return nil, generic.NewInvocationError(op, err)
		}
		cf.CashflowType = generic.CashflowType(cfType)
		cf.StatusType = generic.ActionStatus(status)
		cf.Remark = remark.String
		cf.StatusReason = reason.String
		cf.UpdateActor = updateActor.String
		out = append(out, cf)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewInvocationError(op, err)
	}
	return out, nil
}

// =============================================================================
// CASH IN/OUT STORE
// =============================================================================

const cashInOutColumns = `id, account_id, currency, abs_amount, withdrawal, request_day, request_date,
	event_day, value_day, target_fi_code, target_fi_account_id, self_fi_code, self_fi_account_id,
	status_type, status_reason, update_actor, update_date, cashflow_id`

func (c *conn) InsertCashInOut(ctx context.Context, cio *generic.CashInOut) error {
	cio.UpdateDate = now()
	if cio.RequestDate.IsZero() {
		cio.RequestDate = cio.UpdateDate
	}

	id, err := c.insert(ctx, "sqlstore.InsertCashInOut", `
		INSERT INTO cash_in_outs
		(account_id, currency, abs_amount, withdrawal, request_day, request_date, event_day,
		 value_day, target_fi_code, target_fi_account_id, self_fi_code, self_fi_account_id,
		 status_type, status_reason, update_actor, update_date, cashflow_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cio.AccountID, cio.Currency, cio.AbsAmount, cio.Withdrawal, cio.RequestDay, cio.RequestDate,
		cio.EventDay, cio.ValueDay, cio.TargetFiCode, cio.TargetFiAccountID, cio.SelfFiCode,
		cio.SelfFiAccountID, string(cio.StatusType), nullString(cio.StatusReason),
		nullString(cio.UpdateActor), cio.UpdateDate, nullInt64(cio.CashflowID),
	)
	if err != nil {
		return err
	}
	cio.ID = id
	return nil
}

func (c *conn) UpdateCashInOut(ctx context.Context, cio *generic.CashInOut) error {
	cio.UpdateDate = now()

	res, err := c.exec(ctx, "sqlstore.UpdateCashInOut", `
		UPDATE cash_in_outs
		SET status_type = ?, status_reason = ?, update_actor = ?, update_date = ?, cashflow_id = ?
		WHERE id = ?`,
		string(cio.StatusType), nullString(cio.StatusReason), nullString(cio.UpdateActor),
		cio.UpdateDate, nullInt64(cio.CashflowID), cio.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, "CashInOut", cio.ID)
}

func (c *conn) GetCashInOut(ctx context.Context, id int64) (*generic.CashInOut, error) {
	return c.getCashInOut(ctx, "sqlstore.GetCashInOut", id, "")
}

func (c *conn) LoadCashInOutForUpdate(ctx context.Context, id int64) (*generic.CashInOut, error) {
	return c.getCashInOut(ctx, "sqlstore.LoadCashInOutForUpdate", id, c.d.forUpdate())
}

func (c *conn) getCashInOut(ctx context.Context, op string, id int64, lock string) (*generic.CashInOut, error) {
	items, err := c.queryCashInOuts(ctx, op,
		"SELECT "+cashInOutColumns+" FROM cash_in_outs WHERE id = ?"+lock, id)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (c *conn) FindUnprocessedCashInOut(ctx context.Context, accountID, currency string, withdrawal bool) ([]generic.CashInOut, error) {
	return c.queryCashInOuts(ctx, "sqlstore.FindUnprocessedCashInOut", `
		SELECT `+cashInOutColumns+` FROM cash_in_outs
		WHERE account_id = ? AND currency = ? AND withdrawal = ? AND status_type = ?
		ORDER BY id`,
		accountID, currency, withdrawal, string(generic.StatusUnprocessed),
	)
}

func (c *conn) FindUnprocessedCashInOutByAccount(ctx context.Context, accountID string, withdrawal bool) ([]generic.CashInOut, error) {
	return c.queryCashInOuts(ctx, "sqlstore.FindUnprocessedCashInOutByAccount", `
		SELECT `+cashInOutColumns+` FROM cash_in_outs
		WHERE account_id = ? AND withdrawal = ? AND status_type = ?
		ORDER BY id DESC`,
		accountID, withdrawal, string(generic.StatusUnprocessed),
	)
}

func (c *conn) FindClosableCashInOut(ctx context.Context, day generic.Day, afterID int64, limit int) ([]generic.CashInOut, error) {
	return c.queryCashInOuts(ctx, "sqlstore.FindClosableCashInOut", `
		SELECT `+cashInOutColumns+` FROM cash_in_outs
		WHERE status_type = ? AND event_day <= ? AND id > ?
		ORDER BY id
		LIMIT ?`,
		string(generic.StatusUnprocessed), day, afterID, limit,
	)
}

func (c *conn) FindCashInOut(ctx context.Context, filter generic.Filter) (generic.Page[generic.CashInOut], error) {
	f := filter.Normalized()
	where, args := filterClause(f, "request_day")

	var page generic.Page[generic.CashInOut]
	if err := c.count(ctx, "sqlstore.FindCashInOut", "cash_in_outs", where, args, &page.Total); err != nil {
		return page, err
	}

	items, err := c.queryCashInOuts(ctx, "sqlstore.FindCashInOut",
		"SELECT "+cashInOutColumns+" FROM cash_in_outs"+where+pageClause(where),
		append(args, f.AfterID, f.Limit+1)...)
	if err != nil {
		return page, err
	}
	page.Items, page.NextCursor = trimPage(items, f.Limit, func(c generic.CashInOut) int64 { return c.ID })
	return page, nil
}

func (c *conn) queryCashInOuts(ctx context.Context, op, query string, args ...any) ([]generic.CashInOut, error) {
	rows, err := c.q.QueryContext(ctx, c.d.rebind(query), args...)
	if err != nil {
		return nil, generic.NewInvocationError(op, err)
	}
	defer rows.Close()

	var out []generic.CashInOut
	for rows.Next() {
		var (
			cio                 generic.CashInOut
			status              string
			reason, updateActor sql.NullString
			cashflowID          sql.NullInt64
		)
		if err := rows.Scan(
			&cio.ID, &cio.AccountID, &cio.Currency, &cio.AbsAmount, &cio.Withdrawal,
			&cio.RequestDay, &cio.RequestDate, &cio.EventDay, &cio.ValueDay,
			&cio.TargetFiCode, &cio.TargetFiAccountID, &cio.SelfFiCode, &cio.SelfFiAccountID,
			&status, &reason, &updateActor, &cio.UpdateDate, &cashflowID,
		); err != nil {
			return nil, generic.NewInvocationError(op, err)
		}
		cio.StatusType = generic.ActionStatus(status)
		cio.StatusReason = reason.String
		cio.UpdateActor = updateActor.String
		if cashflowID.Valid {
			id := cashflowID.Int64
			cio.CashflowID = &id
		}
		out = append(out, cio)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewInvocationError(op, err)
	}
	return out, nil
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (c *conn) GetFiAccount(ctx context.Context, accountID, category, currency string) (*generic.FiAccount, error) {
	query := `
		SELECT id, account_id, category, currency, fi_code, fi_account_id
		FROM fi_accounts
		WHERE account_id = ? AND category = ? AND currency = ?
	`

	var fa generic.FiAccount
	err := c.q.QueryRowContext(ctx, c.d.rebind(query), accountID, category, currency).Scan(
		&fa.ID, &fa.AccountID, &fa.Category, &fa.Currency, &fa.FiCode, &fa.FiAccountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.NewInvocationError("sqlstore.GetFiAccount", err)
	}
	return &fa, nil
}

func (c *conn) SaveFiAccount(ctx context.Context, fa *generic.FiAccount) error {
	id, err := c.insert(ctx, "sqlstore.SaveFiAccount", `
		INSERT INTO fi_accounts (account_id, category, currency, fi_code, fi_account_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, category, currency) DO UPDATE SET
			fi_code = excluded.fi_code,
			fi_account_id = excluded.fi_account_id`,
		fa.AccountID, fa.Category, fa.Currency, fa.FiCode, fa.FiAccountID,
	)
	if err != nil {
		return err
	}
	fa.ID = id
	return nil
}

func (c *conn) GetSelfFiAccount(ctx context.Context, category, currency string) (*generic.SelfFiAccount, error) {
	query := `
		SELECT id, category, currency, fi_code, fi_account_id
		FROM self_fi_accounts
		WHERE category = ? AND currency = ?
	`

	var sa generic.SelfFiAccount
	err := c.q.QueryRowContext(ctx, c.d.rebind(query), category, currency).Scan(
		&sa.ID, &sa.Category, &sa.Currency, &sa.FiCode, &sa.FiAccountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.NewInvocationError("sqlstore.GetSelfFiAccount", err)
	}
	return &sa, nil
}

func (c *conn) SaveSelfFiAccount(ctx context.Context, sa *generic.SelfFiAccount) error {
	id, err := c.insert(ctx, "sqlstore.SaveSelfFiAccount", `
		INSERT INTO self_fi_accounts (category, currency, fi_code, fi_account_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category, currency) DO UPDATE SET
			fi_code = excluded.fi_code,
			fi_account_id = excluded.fi_account_id`,
		sa.Category, sa.Currency, sa.FiCode, sa.FiAccountID,
	)
	if err != nil {
		return err
	}
	sa.ID = id
	return nil
}

// =============================================================================
// HOLIDAY STORE
// =============================================================================

func (c *conn) IsHoliday(ctx context.Context, day generic.Day) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx, c.d.rebind("SELECT COUNT(*) FROM holidays WHERE day = ?"), day).Scan(&count)
	if err != nil {
		return false, generic.NewInvocationError("sqlstore.IsHoliday", err)
	}
	return count > 0, nil
}

func (c *conn) GetHoliday(ctx context.Context, id string) (*generic.Holiday, error) {
	var h generic.Holiday
	err := c.q.QueryRowContext(ctx,
		c.d.rebind("SELECT id, category, day, name FROM holidays WHERE id = ?"), id,
	).Scan(&h.ID, &h.Category, &h.Day, &h.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.NewInvocationError("sqlstore.GetHoliday", err)
	}
	return &h, nil
}

func (c *conn) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	if h.Category == "" {
		h.Category = generic.HolidayCategoryDefault
	}
	_, err := c.exec(ctx, "sqlstore.SaveHoliday", `
		INSERT INTO holidays (id, category, day, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			day = excluded.day,
			name = excluded.name`,
		h.ID, h.Category, h.Day, h.Name,
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (c *conn) DeleteHoliday(ctx context.Context, id string) error {
	_, err := c.exec(ctx, "sqlstore.DeleteHoliday", "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// ListHolidays returns the holidays of one year ordered by day.
func (c *conn) ListHolidays(ctx context.Context, year int) ([]generic.Holiday, error) {
	from := generic.NewDay(year, 1, 1)
	to := generic.NewDay(year, 12, 31)

	rows, err := c.q.QueryContext(ctx, c.d.rebind(`
		SELECT id, category, day, name FROM holidays
		WHERE day >= ? AND day <= ?
		ORDER BY day ASC`), from, to)
	if err != nil {
		return nil, generic.NewInvocationError("sqlstore.ListHolidays", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		if err := rows.Scan(&h.ID, &h.Category, &h.Day, &h.Name); err != nil {
			return nil, generic.NewInvocationError("sqlstore.ListHolidays", err)
		}
		holidays = append(holidays, h)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewInvocationError("sqlstore.ListHolidays", err)
	}
	return holidays, nil
}

// =============================================================================
// SETTING STORE
// =============================================================================

func (c *conn) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.q.QueryRowContext(ctx,
		c.d.rebind("SELECT setting_value FROM settings WHERE setting_key = ?"), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, generic.NewInvocationError("sqlstore.GetSetting", err)
	}
	return value, true, nil
}

func (c *conn) SetSetting(ctx context.Context, key, value string) error {
	_, err := c.exec(ctx, "sqlstore.SetSetting", `
		INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET setting_value = excluded.setting_value`,
		key, value,
	)
	return err
}

func (c *conn) FindSettings(ctx context.Context, keyword string) ([]generic.Setting, error) {
	rows, err := c.q.QueryContext(ctx, c.d.rebind(`
		SELECT setting_key, setting_value FROM settings
		WHERE setting_key LIKE ? ESCAPE '\'
		ORDER BY setting_key ASC`), "%"+escapeLike(keyword)+"%")
	if err != nil {
		return nil, generic.NewInvocationError("sqlstore.FindSettings", err)
	}
	defer rows.Close()

	var settings []generic.Setting
	for rows.Next() {
		var st generic.Setting
		if err := rows.Scan(&st.ID, &st.Value); err != nil {
			return nil, generic.NewInvocationError("sqlstore.FindSettings", err)
		}
		settings = append(settings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewInvocationError("sqlstore.FindSettings", err)
	}
	return settings, nil
}

// =============================================================================
// FILTER HELPERS
// =============================================================================

// filterClause renders the shared admin filter. dayColumn is the column the
// From/To range applies to.
func filterClause(f generic.Filter, dayColumn string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.AccountID != "" {
		conds = append(conds, `account_id LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.AccountID)+"%")
	}
	if f.Currency != "" {
		conds = append(conds, "currency = ?")
		args = append(args, f.Currency)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status_type IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.From.IsZero() {
		conds = append(conds, dayColumn+" >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, dayColumn+" <= ?")
		args = append(args, f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pageClause(where string) string {
	if where == "" {
		return " WHERE id > ? ORDER BY id LIMIT ?"
	}
	return " AND id > ? ORDER BY id LIMIT ?"
}

func (c *conn) count(ctx context.Context, op, table, where string, args []any, total *int) error {
	err := c.q.QueryRowContext(ctx, c.d.rebind("SELECT COUNT(*) FROM "+table+where), args...).Scan(total)
	if err != nil {
		return generic.NewInvocationError(op, err)
	}
	return nil
}

// trimPage drops the look-ahead row fetched to detect a further page.
func trimPage[T any](items []T, limit int, id func(T) int64) ([]T, int64) {
	if items == nil {
		items = []T{}
	}
	if len(items) <= limit {
		return items, 0
	}
	items = items[:limit]
	return items, id(items[limit-1])
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

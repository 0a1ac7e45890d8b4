package sqlstore

const sqliteSchema = `
	-- Settled balance, one row per account and currency
	CREATE TABLE IF NOT EXISTS cash_balances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		base_day TEXT NOT NULL,
		amount TEXT NOT NULL,
		update_date TIMESTAMP NOT NULL,
		UNIQUE(account_id, currency)
	);

	CREATE TABLE IF NOT EXISTS cashflows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		cashflow_type TEXT NOT NULL,
		remark TEXT,
		event_day TEXT NOT NULL,
		event_date TIMESTAMP NOT NULL,
		value_day TEXT NOT NULL,
		status_type TEXT NOT NULL,
		status_reason TEXT,
		update_actor TEXT,
		update_date TIMESTAMP NOT NULL
	);

	-- Realization scan and available-balance lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_cashflows_status_value_day
		ON cashflows(status_type, value_day);
	CREATE INDEX IF NOT EXISTS idx_cashflows_account
		ON cashflows(account_id, currency, status_type);

	CREATE TABLE IF NOT EXISTS cash_in_outs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		abs_amount TEXT NOT NULL,
		withdrawal BOOLEAN NOT NULL,
		request_day TEXT NOT NULL,
		request_date TIMESTAMP NOT NULL,
		event_day TEXT NOT NULL,
		value_day TEXT NOT NULL,
		target_fi_code TEXT NOT NULL,
		target_fi_account_id TEXT NOT NULL,
		self_fi_code TEXT NOT NULL,
		self_fi_account_id TEXT NOT NULL,
		status_type TEXT NOT NULL,
		status_reason TEXT,
		update_actor TEXT,
		update_date TIMESTAMP NOT NULL,
		cashflow_id INTEGER REFERENCES cashflows(id)
	);

	-- Closing scan and pending-withdrawal lookups
	CREATE INDEX IF NOT EXISTS idx_cash_in_outs_status_event_day
		ON cash_in_outs(status_type, event_day);
	CREATE INDEX IF NOT EXISTS idx_cash_in_outs_account
		ON cash_in_outs(account_id, currency, withdrawal, status_type);

	CREATE TABLE IF NOT EXISTS fi_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		category TEXT NOT NULL,
		currency TEXT NOT NULL,
		fi_code TEXT NOT NULL,
		fi_account_id TEXT NOT NULL,
		UNIQUE(account_id, category, currency)
	);

	CREATE TABLE IF NOT EXISTS self_fi_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		currency TEXT NOT NULL,
		fi_code TEXT NOT NULL,
		fi_account_id TEXT NOT NULL,
		UNIQUE(category, currency)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT 'default',
		day TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_day
		ON holidays(day);

	CREATE TABLE IF NOT EXISTS settings (
		setting_key TEXT PRIMARY KEY,
		setting_value TEXT NOT NULL
	);
`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS cash_balances (
		id BIGSERIAL PRIMARY KEY,
		account_id TEXT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		base_day DATE NOT NULL,
		amount NUMERIC(28, 8) NOT NULL,
		update_date TIMESTAMPTZ NOT NULL,
		UNIQUE(account_id, currency)
	);

	CREATE TABLE IF NOT EXISTS cashflows (
		id BIGSERIAL PRIMARY KEY,
		account_id TEXT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		amount NUMERIC(28, 8) NOT NULL,
		cashflow_type TEXT NOT NULL,
		remark TEXT,
		event_day DATE NOT NULL,
		event_date TIMESTAMPTZ NOT NULL,
		value_day DATE NOT NULL,
		status_type TEXT NOT NULL,
		status_reason TEXT,
		update_actor TEXT,
		update_date TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cashflows_status_value_day
		ON cashflows(status_type, value_day);
	CREATE INDEX IF NOT EXISTS idx_cashflows_account
		ON cashflows(account_id, currency, status_type);

	CREATE TABLE IF NOT EXISTS cash_in_outs (
		id BIGSERIAL PRIMARY KEY,
		account_id TEXT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		abs_amount NUMERIC(28, 8) NOT NULL,
		withdrawal BOOLEAN NOT NULL,
		request_day DATE NOT NULL,
		request_date TIMESTAMPTZ NOT NULL,
		event_day DATE NOT NULL,
		value_day DATE NOT NULL,
		target_fi_code TEXT NOT NULL,
		target_fi_account_id TEXT NOT NULL,
		self_fi_code TEXT NOT NULL,
		self_fi_account_id TEXT NOT NULL,
		status_type TEXT NOT NULL,
		status_reason TEXT,
		update_actor TEXT,
		update_date TIMESTAMPTZ NOT NULL,
		cashflow_id BIGINT REFERENCES cashflows(id)
	);

	CREATE INDEX IF NOT EXISTS idx_cash_in_outs_status_event_day
		ON cash_in_outs(status_type, event_day);
	CREATE INDEX IF NOT EXISTS idx_cash_in_outs_account
		ON cash_in_outs(account_id, currency, withdrawal, status_type);

	CREATE TABLE IF NOT EXISTS fi_accounts (
		id BIGSERIAL PRIMARY KEY,
		account_id TEXT NOT NULL,
		category TEXT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		fi_code TEXT NOT NULL,
		fi_account_id TEXT NOT NULL,
		UNIQUE(account_id, category, currency)
	);

	CREATE TABLE IF NOT EXISTS self_fi_accounts (
		id BIGSERIAL PRIMARY KEY,
		category TEXT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		fi_code TEXT NOT NULL,
		fi_account_id TEXT NOT NULL,
		UNIQUE(category, currency)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT 'default',
		day DATE NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_day
		ON holidays(day);

	CREATE TABLE IF NOT EXISTS settings (
		setting_key TEXT PRIMARY KEY,
		setting_value TEXT NOT NULL
	);
`

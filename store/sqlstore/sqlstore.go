/*
Package sqlstore provides a database/sql implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore on top of SQLite (default, tests) and
  PostgreSQL. Both dialects share the same queries; the differences are
  placeholders, column types and row locks.

DIALECTS:
  sqlite3:  TEXT amounts and days, single connection, BEGIN IMMEDIATE
  postgres: NUMERIC amounts, DATE days, SELECT ... FOR UPDATE

KEY TABLES:
  cash_balances:    One row per (account_id, currency), carried forward in place
  cashflows:        Signed movements awaiting or past realization
  cash_in_outs:     Withdrawal and deposit requests
  fi_accounts:      Customer financial-institution accounts
  self_fi_accounts: Institution settlement accounts
  holidays:         Non-business days
  settings:         Key/value system settings

CONCURRENCY:
  No process-level mutex. SQLite runs with one open connection and
  _txlock=immediate so there is a single writer; transactions queue on the
  connection pool. PostgreSQL relies on row locks from Load*ForUpdate.
  Reads issued while a transaction is open must use the store handed to
  the WithTx callback.

USAGE:
  store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: "sqlite3", DSN: "./settlement.db"})
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on Open(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - txn/: Transactional-unit runner on top of WithTx
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// DIALECT
// =============================================================================

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type dialect struct {
	name string
}

func (d dialect) postgres() bool { return d.name == DriverPostgres }

// rebind rewrites ? placeholders as $n for postgres.
func (d dialect) rebind(query string) string {
	if !d.postgres() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-lock suffix. SQLite locks the database on
// BEGIN IMMEDIATE, so it has none.
func (d dialect) forUpdate() string {
	if d.postgres() {
		return " FOR UPDATE"
	}
	return ""
}

func (d dialect) txOptions(opts generic.TxOptions) *sql.TxOptions {
	if !d.postgres() {
		return nil
	}
	return &sql.TxOptions{ReadOnly: opts.ReadOnly, Isolation: opts.Isolation}
}

// =============================================================================
// STORE
// =============================================================================

// Config selects the backend and pool settings.
type Config struct {
	Driver          string // sqlite3 (default) or postgres
	DSN             string // file path, ":memory:", or postgres URL
	MaxOpenConns    int    // postgres only; sqlite always uses 1
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements generic.TxStore.
type Store struct {
	*conn
	db *sql.DB
}

var (
	_ generic.TxStore = (*Store)(nil)
	_ generic.Store   = (*conn)(nil)
)

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), Config{Driver: DriverSQLite, DSN: dbPath})
}

// Open connects, configures the pool and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d := dialect{name: cfg.Driver}
	if d.name == "" {
		d.name = DriverSQLite
	}

	dsn := cfg.DSN
	switch d.name {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.postgres() {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	} else {
		// One connection: keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	store := &Store{conn: &conn{q: db, d: d}, db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return generic.NewInvocationError("sqlstore.ping", err)
	}
	return nil
}

// Driver returns the dialect name.
func (s *Store) Driver() string { return s.d.name }

func (s *Store) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.d.postgres() {
		schema = postgresSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// A ctx deadline aborts the transaction.
func (s *Store) WithTx(ctx context.Context, opts generic.TxOptions, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.d.txOptions(opts))
	if err != nil {
		return generic.NewInvocationError("sqlstore.begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, d: s.d}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return generic.NewInvocationError("sqlstore.commit", err)
	}
	return nil
}

// =============================================================================
// CONN - Query surface shared by *sql.DB and *sql.Tx
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q queryer
	d dialect
}

func (c *conn) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.d.rebind(query), args...)
	if err != nil {
		return nil, generic.NewInvocationError(op, err)
	}
	return res, nil
}

// insert runs an INSERT ... RETURNING id.
func (c *conn) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	var id int64
	if err := c.q.QueryRowContext(ctx, c.d.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, generic.NewInvocationError(op, err)
	}
	return id, nil
}

// mustAffect turns an UPDATE that matched nothing into a not-found error.
func mustAffect(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return generic.NewInvocationError("sqlstore.rowsAffected", err)
	}
	if n == 0 {
		return generic.NotFound(entity, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func now() time.Time {
	return time.Now().UTC()
}

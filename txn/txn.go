/*
Package txn runs work inside a transactional unit, optionally under a
per-key lock.

PURPOSE:
  The only sanctioned way application code enters a transaction combined
  with account serialization. A Template describes the unit; Run executes:

    acquire lock (if any)
      -> join the unit already bound to ctx, or open a new one
        -> work
      -> commit, or roll back on error/panic
    release lock (always)

PROPAGATION:
  Required (default): join the store bound to ctx by an enclosing Run.
  RequiresNew: always open a fresh unit. Backends with a single writer
  (memory, SQLite) cannot open one while the caller still holds another,
  so RequiresNew is meant for top-level loops such as the batch jobs.

TIMEOUT:
  Applied as a context deadline after the lock is held; the lock registry
  itself never times out.

USAGE:
  err := runner.Tx().WriteLock(accountID).Run(ctx, func(ctx context.Context, s generic.Store) error {
      ...
  })

  cio, err := txn.Do(ctx, runner.Tx().WriteLock(accountID), func(ctx context.Context, s generic.Store) (*generic.CashInOut, error) {
      ...
  })
*/
package txn

import (
	"context"
	"database/sql"
	"time"

	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/lock"
	"go.uber.org/zap"
)

// Runner builds templates bound to one store and one lock registry.
type Runner struct {
	store          generic.TxStore
	locks          *lock.Registry
	log            *zap.Logger
	defaultTimeout time.Duration
}

type Option func(*Runner)

// WithLogger sets the logger used for rollback diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithDefaultTimeout applies d to every template that sets no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) { r.defaultTimeout = d }
}

func NewRunner(store generic.TxStore, locks *lock.Registry, opts ...Option) *Runner {
	if locks == nil {
		locks = lock.NewRegistry()
	}
	r := &Runner{store: store, locks: locks, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Store returns the store units are opened on.
func (r *Runner) Store() generic.TxStore { return r.store }

// Tx starts a template with Required propagation, read-write, default
// isolation and no lock.
func (r *Runner) Tx() Template {
	return Template{runner: r, timeout: r.defaultTimeout}
}

// =============================================================================
// TEMPLATE
// =============================================================================

// Template is an immutable description of one transactional unit.
type Template struct {
	runner      *Runner
	opts        generic.TxOptions
	requiresNew bool
	timeout     time.Duration
	lockKey     string
	lockMode    lock.Mode
}

func (t Template) ReadOnly() Template {
	t.opts.ReadOnly = true
	return t
}

func (t Template) RequiresNew() Template {
	t.requiresNew = true
	return t
}

func (t Template) Isolation(level sql.IsolationLevel) Template {
	t.opts.Isolation = level
	return t
}

func (t Template) Timeout(d time.Duration) Template {
	t.timeout = d
	return t
}

func (t Template) ReadLock(key string) Template {
	t.lockKey, t.lockMode = key, lock.Read
	return t
}

func (t Template) WriteLock(key string) Template {
	t.lockKey, t.lockMode = key, lock.Write
	return t
}

// Run executes fn inside the unit. fn receives a ctx carrying both the lock
// ownership and the tx-bound store; nested Runs must be given that ctx.
func (t Template) Run(ctx context.Context, fn func(ctx context.Context, s generic.Store) error) error {
	if t.lockKey != "" {
		lockedCtx, release, err := t.runner.locks.Acquire(ctx, t.lockKey, t.lockMode)
		if err != nil {
			return err
		}
		defer release()
		ctx = lockedCtx
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if bound, ok := generic.BoundStore(ctx); ok && !t.requiresNew {
		return fn(ctx, bound)
	}

	err := t.runner.store.WithTx(ctx, t.opts, func(s generic.Store) error {
		return fn(generic.WithStore(ctx, s), s)
	})
	if err != nil {
		t.runner.log.Debug("transaction rolled back",
			zap.String("lock_key", t.lockKey),
			zap.Bool("read_only", t.opts.ReadOnly),
			zap.Error(err),
		)
	}
	return err
}

// Do is Run for work that produces a value.
func Do[T any](ctx context.Context, t Template, fn func(ctx context.Context, s generic.Store) (T, error)) (T, error) {
	var out T
	err := t.Run(ctx, func(ctx context.Context, s generic.Store) error {
		v, err := fn(ctx, s)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

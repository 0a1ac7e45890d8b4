/*
Package service exposes the use cases of the settlement engine.

PURPOSE:
  Each exported method is one use case: it picks the lock key, opens the
  transactional unit and calls into asset.Ledger. Nothing below this layer
  acquires locks or opens transactions on its own.

SERVICES:
  AssetService:        Customer operations on the caller's own account
  AssetAdminService:   Back-office queries, cancellation and batch jobs
  SystemAdminService:  Business-day advance, holidays, bank accounts

LOCKING:
  Lock keys are namespaced: "account:<id>" for an account and "system:<name>"
  for system state, so no account ID can collide with a system key. Writers
  take the write lock, read paths that must see a consistent account take the
  read lock. The business-day setting is serialized under its own key.

BATCHES:
  CloseCashOut and RealizeCashflows read candidates in keyset pages outside
  any transaction, then handle every item in its own RequiresNew unit under
  the item's account lock. A failing item is marked Error in a second unit
  and the batch moves on. Running a batch twice is harmless: items already
  terminal are skipped.

SEE ALSO:
  - asset/: The state machines called from here
  - txn/: Unit templates
  - api/: HTTP handlers calling these services
*/
package service

import (
	"github.com/google/uuid"
	"github.com/warp/settlement-engine/asset"
	"github.com/warp/settlement-engine/calendar"
	"github.com/warp/settlement-engine/txn"
	"go.uber.org/zap"
)

// Lock key namespaces.
const (
	accountLockPrefix = "account:"
	systemLockPrefix  = "system:"
)

// accountLock is the lock key of one customer account.
func accountLock(accountID string) string { return accountLockPrefix + accountID }

// DefaultBatchPageSize is used when a batch page size is not configured.
const DefaultBatchPageSize = 100

// Deps are the collaborators shared by every service.
type Deps struct {
	Runner   *txn.Runner
	Calendar *calendar.BusinessDay
	Ledger   *asset.Ledger
	Log      *zap.Logger

	// BatchPageSize bounds how many rows one batch page reads.
	BatchPageSize int
}

func (d Deps) normalized() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.BatchPageSize <= 0 {
		d.BatchPageSize = DefaultBatchPageSize
	}
	if d.Ledger == nil {
		d.Ledger = asset.NewLedger(d.Calendar, d.Calendar.Clock())
	}
	return d
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	RunID     uuid.UUID `json:"runId"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (r *BatchResult) record(o outcome) {
	switch o {
	case outcomeProcessed:
		r.Processed++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Failed++
	}
}

/*
scheduler.go - Automated daily job scheduler

PURPOSE:
  Periodically runs the daily settlement jobs so a deployment without an
  external cron still closes withdrawals and realizes cashflows.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick runs closingCashOut, then realizeCashflow
  - Both jobs are idempotent, so overlapping with a manual trigger is safe
  - The business day is never advanced here; processDay stays manual

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: false)

USAGE:
  scheduler := NewDailyJobScheduler(admin, log)
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Manual job endpoints
  - service/asset_admin.go: The batch jobs
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/service"
	"go.uber.org/zap"
)

// DailyJobs is the batch surface the scheduler drives.
type DailyJobs interface {
	CloseCashOut(ctx context.Context, actor generic.Actor) (service.BatchResult, error)
	RealizeCashflows(ctx context.Context, actor generic.Actor) (service.BatchResult, error)
}

// DailyJobScheduler runs the daily batch jobs on a ticker.
type DailyJobScheduler struct {
	Jobs          DailyJobs
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewDailyJobScheduler(jobs DailyJobs, log *zap.Logger) *DailyJobScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DailyJobScheduler{
		Jobs:          jobs,
		CheckInterval: time.Hour,
		log:           log.With(zap.String("component", "scheduler")),
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (s *DailyJobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(ctx, s.ticker)

	s.log.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *DailyJobScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("scheduler stopped")
}

func (s *DailyJobScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs both jobs once, closing first so that same-day cashflows
// created by closing can be realized in the same pass.
func (s *DailyJobScheduler) RunNow(ctx context.Context) (closed, realized service.BatchResult) {
	var err error
	closed, err = s.Jobs.CloseCashOut(ctx, generic.SystemActor)
	if err != nil {
		s.log.Error("closingCashOut failed", zap.Error(err))
	}
	realized, err = s.Jobs.RealizeCashflows(ctx, generic.SystemActor)
	if err != nil {
		s.log.Error("realizeCashflow failed", zap.Error(err))
	}
	return closed, realized
}

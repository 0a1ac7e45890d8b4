/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the settlement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Open the store (SQLite or postgres) and migrate
  4. Wire calendar, lock registry, txn runner and services
  5. Configure HTTP router, start the optional job scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PORT or 8080)
  -db      Database path or DSN (default: DATABASE_URL or settlement.db)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/settlement.db"

  # Run against postgres
  DB_DRIVER=postgres DATABASE_URL="postgres://localhost/settlement?sslmode=disable" ./server

  # Run the daily jobs every 10 minutes
  SCHEDULER_ENABLED=true SCHEDULER_INTERVAL=10m ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/settlement-engine/api"
	"github.com/warp/settlement-engine/calendar"
	"github.com/warp/settlement-engine/config"
	"github.com/warp/settlement-engine/lock"
	"github.com/warp/settlement-engine/logging"
	"github.com/warp/settlement-engine/service"
	"github.com/warp/settlement-engine/store/sqlstore"
	"github.com/warp/settlement-engine/txn"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Initialize store
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Wire services
	clock := calendar.SystemClock{}
	deps := service.Deps{
		Runner:        txn.NewRunner(store, lock.NewRegistry(), txn.WithLogger(log), txn.WithDefaultTimeout(cfg.TxTimeout)),
		Calendar:      calendar.New(store, clock),
		Log:           log,
		BatchPageSize: cfg.BatchPageSize,
	}
	admin := service.NewAssetAdminService(deps)
	handler := api.NewHandler(service.NewAssetService(deps), admin, service.NewSystemAdminService(deps), log)

	scheduler := api.NewDailyJobScheduler(admin, log)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TxTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("driver", store.Driver()),
			zap.String("env", cfg.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

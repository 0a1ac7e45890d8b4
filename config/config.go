/*
Package config loads runtime settings.

SOURCES (later wins):
  1. Defaults below
  2. .env in the working directory (optional)
  3. Process environment
  4. Command-line flags -port and -db

VARIABLES:
  PORT                 HTTP port (8080)
  DB_DRIVER            sqlite3 | postgres (sqlite3)
  DATABASE_URL         SQLite path or postgres DSN (settlement.db)
  APP_ENV              development | production (development)
  LOG_LEVEL            zap level; empty picks the environment default
  BATCH_PAGE_SIZE      rows per batch page (100)
  TX_TIMEOUT           default transaction timeout (30s)
  SCHEDULER_ENABLED    run the daily jobs on a ticker (false)
  SCHEDULER_INTERVAL   ticker period (1h)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	DBDriver          string
	DatabaseURL       string
	Env               string
	LogLevel          string
	BatchPageSize     int
	TxTimeout         time.Duration
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

func defaults() Config {
	return Config{
		Port:              8080,
		DBDriver:          "sqlite3",
		DatabaseURL:       "settlement.db",
		Env:               "development",
		BatchPageSize:     100,
		TxTimeout:         30 * time.Second,
		SchedulerInterval: time.Hour,
	}
}

// Load reads .env (if present) and the environment, then applies flags
// parsed from args.
func Load(args []string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := defaults()
	var err error
	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	cfg.DBDriver = envString("DB_DRIVER", cfg.DBDriver)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.Env = envString("APP_ENV", cfg.Env)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	if cfg.BatchPageSize, err = envInt("BATCH_PAGE_SIZE", cfg.BatchPageSize); err != nil {
		return Config{}, err
	}
	if cfg.TxTimeout, err = envDuration("TX_TIMEOUT", cfg.TxTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SchedulerEnabled, err = envBool("SCHEDULER_ENABLED", cfg.SchedulerEnabled); err != nil {
		return Config{}, err
	}
	if cfg.SchedulerInterval, err = envDuration("SCHEDULER_INTERVAL", cfg.SchedulerInterval); err != nil {
		return Config{}, err
	}

	fsFlags := flag.NewFlagSet("server", flag.ContinueOnError)
	fsFlags.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fsFlags.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "database path or DSN")
	if err := fsFlags.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	if c.BatchPageSize <= 0 {
		return fmt.Errorf("BATCH_PAGE_SIZE: must be positive, got %d", c.BatchPageSize)
	}
	if c.SchedulerEnabled && c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL: must be positive, got %s", c.SchedulerInterval)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

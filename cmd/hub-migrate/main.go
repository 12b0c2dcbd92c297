// hub-migrate evolves an existing hub database schema in place: quota
// columns on the user and organization tables, the sshkey table with its
// indexes, and a backfill of legacy storage quotas. Safe to re-run at
// any time; steps whose effects already exist are skipped.
//
// Usage:
//
//	hub-migrate                       # configuration from environment
//	hub-migrate --config config.yaml  # with a config file
//
// Exits zero after the final success event, non-zero on any fatal error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/KohakuBlueleaf/kohaku-hub-migrate/config"
	"github.com/KohakuBlueleaf/kohaku-hub-migrate/internal/database"
	"github.com/KohakuBlueleaf/kohaku-hub-migrate/internal/logging"
	"github.com/KohakuBlueleaf/kohaku-hub-migrate/internal/migration"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("hub-migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync()
	rep := logging.NewReporter(logger)

	backend, err := migration.ParseDatabaseType(cfg.App.DBBackend)
	if err != nil {
		rep.Error("Invalid database backend", zap.Error(err))
		return 1
	}

	ctx := context.Background()

	mgr := database.NewManager(backend, cfg.App.DatabaseURL, logger)
	defer mgr.Close()

	db, err := mgr.Get(ctx)
	if err != nil {
		rep.Error("Failed to connect to database", zap.Error(err))
		return 1
	}

	runner, err := migration.NewRunner(db, backend, rep)
	if err != nil {
		rep.Error("Failed to initialize migration", zap.Error(err))
		return 1
	}

	if err := runner.Run(ctx); err != nil {
		rep.Error("Migration failed", zap.Error(err))
		return 1
	}
	if err := runner.Verify(ctx); err != nil {
		rep.Error("Migration verification failed", zap.Error(err))
		return 1
	}
	return 0
}

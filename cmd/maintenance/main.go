// Command maintenance runs the store housekeeping the crawl path never
// does itself: duplicate reconciliation and age-based pruning. Meant
// for a nightly schedule.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ekerdev/vehicle-ingest/internal/config"
	"github.com/ekerdev/vehicle-ingest/internal/database"
)

func main() {
	godotenv.Load()

	pruneAge := flag.Duration("prune-age", 30*24*time.Hour,
		"remove listings not re-seen within this window (0 disables pruning)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to open listing store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureTable(ctx); err != nil {
		logger.Error("failed to ensure listings table", "error", err)
		os.Exit(1)
	}

	// Reconcile before EnsureSchema: a legacy url-keyed table can hold
	// duplicate listing numbers, and creating the unique identity index
	// over them would fail.
	reconciled, pruned, err := store.Housekeep(ctx, *pruneAge)
	if err != nil {
		logger.Error("housekeeping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("housekeeping done",
		"duplicates_removed", reconciled,
		"stale_removed", pruned,
		"prune_age", pruneAge.String())

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
}

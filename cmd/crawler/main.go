package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ekerdev/vehicle-ingest/internal/api"
	"github.com/ekerdev/vehicle-ingest/internal/browser"
	"github.com/ekerdev/vehicle-ingest/internal/catalog"
	"github.com/ekerdev/vehicle-ingest/internal/config"
	"github.com/ekerdev/vehicle-ingest/internal/crawler"
	"github.com/ekerdev/vehicle-ingest/internal/database"
	"github.com/ekerdev/vehicle-ingest/internal/events"
	"github.com/ekerdev/vehicle-ingest/internal/extract"
	"github.com/ekerdev/vehicle-ingest/internal/fetch"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Crawler.CatalogFile, cfg.Crawler.SkipModels)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	// Cancel the run on SIGINT/SIGTERM; loops check the context at
	// every page and listing boundary.
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

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	var publisher *events.Publisher
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, events disabled", "error", err)
		} else {
			publisher = events.NewPublisher(redisClient, cfg.Redis.Channel, logger)
		}
	}

	if cfg.Status.Addr != "" {
		handlers := api.NewHandlers(store, logger)
		statusServer := &http.Server{Addr: cfg.Status.Addr, Handler: handlers.Router()}
		go func() {
			logger.Info("status server listening", "addr", cfg.Status.Addr)
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status server failed", "error", err)
			}
		}()
		defer statusServer.Close()
	}

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgents:     cfg.Browser.UserAgents,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		logger.Error("failed to start browser session", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	page, err := b.NewPage()
	if err != nil {
		logger.Error("failed to open page", "error", err)
		os.Exit(1)
	}
	defer page.Close()

	fetcher := fetch.New(page, fetch.Options{
		MaxRetries:    cfg.Crawler.MaxRetries,
		RetryDelay:    cfg.Crawler.RetryDelay,
		ChallengePoll: cfg.Crawler.ChallengePoll,
		MarkerSettle:  cfg.Crawler.MarkerSettle,
		PaceMin:       cfg.Crawler.ListingPaceMin,
		PaceMax:       cfg.Crawler.ListingPaceMax,
		Sleep:         fetch.CtxSleep,
	}, logger)

	extractor := extract.New(extract.DefaultIndexLayout(),
		cfg.Scoring.PaintedWeight, cfg.Scoring.SwappedWeight, logger)

	c := crawler.New(fetcher, store, extractor, publisher, cat, crawler.Options{
		MaxPagesPerCategory: cfg.Crawler.MaxPagesPerCategory,
		PageSize:            cfg.Crawler.PageSize,
		ListingPaceMin:      cfg.Crawler.ListingPaceMin,
		ListingPaceMax:      cfg.Crawler.ListingPaceMax,
		PagePaceMin:         cfg.Crawler.PagePaceMin,
		PagePaceMax:         cfg.Crawler.PagePaceMax,
		TargetPaceMin:       cfg.Crawler.TargetPaceMin,
		TargetPaceMax:       cfg.Crawler.TargetPaceMax,
	}, logger)

	_, err = c.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("crawl run aborted", "error", err)
		os.Exit(1)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package crawler walks the target catalog page by page and listing by
// listing, merging index summaries with detail enrichment into store
// upserts. One run is strictly sequential: a single browser session
// presenting humanlike browsing is the anti-detection policy, so
// parallel fetching is deliberately absent.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ekerdev/vehicle-ingest/internal/catalog"
	"github.com/ekerdev/vehicle-ingest/internal/database"
	"github.com/ekerdev/vehicle-ingest/internal/events"
	"github.com/ekerdev/vehicle-ingest/internal/fetch"
	"github.com/ekerdev/vehicle-ingest/internal/models"
	"github.com/ekerdev/vehicle-ingest/internal/normalize"
)

// Fetcher retrieves one page at a time through the browser session.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind fetch.PageKind) (string, error)
}

// Store is the slice of the listing store the crawl path uses; the
// crawl path only ever upserts.
type Store interface {
	UpsertListing(ctx context.Context, l *models.Listing) (bool, error)
}

// Extractor parses raw page content.
type Extractor interface {
	Index(html string) []models.Summary
	Detail(html string) models.Enrichment
}

type Options struct {
	MaxPagesPerCategory int
	PageSize            int
	ListingPaceMin      time.Duration
	ListingPaceMax      time.Duration
	PagePaceMin         time.Duration
	PagePaceMax         time.Duration
	TargetPaceMin       time.Duration
	TargetPaceMax       time.Duration
	Sleep               fetch.SleepFunc
}

// RunSummary is always produced, even when individual listings failed;
// a fatal abort is distinguished by the returned error.
type RunSummary struct {
	RunID    string
	Targets  int
	Pages    int
	Upserted int
	Inserted int
	Skipped  int
	Duration time.Duration
}

type Crawler struct {
	fetcher   Fetcher
	store     Store
	extractor Extractor
	publisher *events.Publisher
	targets   []catalog.Target
	opts      Options
	logger    *slog.Logger
}

func New(f Fetcher, s Store, e Extractor, p *events.Publisher, c *catalog.Catalog, opts Options, logger *slog.Logger) *Crawler {
	if opts.MaxPagesPerCategory < 1 {
		opts.MaxPagesPerCategory = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 20
	}
	if opts.Sleep == nil {
		opts.Sleep = fetch.CtxSleep
	}
	return &Crawler{
		fetcher:   f,
		store:     s,
		extractor: e,
		publisher: p,
		targets:   c.Targets,
		opts:      opts,
		logger:    logger.With("component", "crawler"),
	}
}

// Run walks every target to exhaustion or the page cap. Per-listing
// failures are logged and skipped; only store connectivity loss or
// cancellation aborts the run.
func (c *Crawler) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", summary.RunID)

	logger.Info("crawl run started", "targets", len(c.targets))

	var runErr error
	for _, target := range c.targets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if err := c.crawlTarget(ctx, logger, target, summary); err != nil {
			runErr = err
			break
		}

		summary.Targets++
		c.pace(ctx, c.opts.TargetPaceMin, c.opts.TargetPaceMax)
	}

	summary.Duration = time.Since(start)

	c.publisher.RunCompleted(ctx, summary.RunID, events.RunStats{
		Targets:  summary.Targets,
		Pages:    summary.Pages,
		Upserted: summary.Upserted,
		Inserted: summary.Inserted,
		Skipped:  summary.Skipped,
		Duration: summary.Duration,
	})

	logger.Info("crawl run finished",
		"targets", summary.Targets,
		"pages", summary.Pages,
		"upserted", summary.Upserted,
		"inserted", summary.Inserted,
		"skipped", summary.Skipped,
		"duration", summary.Duration.Round(time.Second).String(),
		"fatal", runErr != nil)

	return summary, runErr
}

func (c *Crawler) crawlTarget(ctx context.Context, logger *slog.Logger, target catalog.Target, summary *RunSummary) error {
	tlog := logger.With("brand", target.Brand, "model", target.Model)
	tlog.Info("target started")

	for page := 0; page < c.opts.MaxPagesPerCategory; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL := target.PageURL(page, c.opts.PageSize)
		html, err := c.fetcher.Fetch(ctx, pageURL, fetch.PageIndex)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tlog.Error("index page fetch failed, abandoning target", "page", page, "error", err)
			return nil
		}

		summaries := c.extractor.Index(html)
		summary.Pages++
		tlog.Info("page fetched", "page", page, "listings", len(summaries))

		// An empty page is the only end-of-catalog signal; pages are
		// addressed by offset, there is no next link to follow.
		if len(summaries) == 0 {
			tlog.Info("catalog exhausted", "page", page)
			return nil
		}

		for _, s := range summaries {
			if err := ctx.Err(); err != nil {
				return err
			}

			inserted, err := c.processListing(ctx, target, s, summary.RunID)
			if err != nil {
				if errors.Is(err, database.ErrStoreUnavailable) || ctx.Err() != nil {
					return err
				}
				summary.Skipped++
				tlog.Warn("listing skipped", "listing_no", s.ListingNo, "error", err)
				continue
			}

			summary.Upserted++
			if inserted {
				summary.Inserted++
			}

			c.pace(ctx, c.opts.ListingPaceMin, c.opts.ListingPaceMax)
		}

		c.pace(ctx, c.opts.PagePaceMin, c.opts.PagePaceMax)
	}

	return nil
}

// processListing fetches the detail page, merges both projections into
// a normalized record and upserts it.
func (c *Crawler) processListing(ctx context.Context, target catalog.Target, s models.Summary, runID string) (bool, error) {
	detailURL := resolveURL(target.BaseURL, s.DetailURL)

	html, err := c.fetcher.Fetch(ctx, detailURL, fetch.PageDetail)
	if err != nil {
		return false, fmt.Errorf("detail fetch: %w", err)
	}

	enrichment := c.extractor.Detail(html)
	if enrichment.FuelType.State != models.FieldPresent || enrichment.Transmission.State != models.FieldPresent {
		c.logger.Debug("detail fields degraded",
			"listing_no", s.ListingNo,
			"fuel_type", enrichment.FuelType.State.String(),
			"transmission", enrichment.Transmission.State.String())
	}

	listing := merge(target, s, enrichment, detailURL)

	inserted, err := c.store.UpsertListing(ctx, listing)
	if err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}

	if inserted {
		c.publisher.ListingUpserted(ctx, runID, listing)
	}

	return inserted, nil
}

// merge combines an index summary and detail enrichment into one
// normalized record. Normalization never fails; bad text degrades to
// zero values that stay visible in the store.
func merge(target catalog.Target, s models.Summary, e models.Enrichment, detailURL string) *models.Listing {
	province, district := normalize.SplitLocation(s.RawLocation)

	return &models.Listing{
		ListingNo:    s.ListingNo,
		Title:        s.Title,
		URL:          detailURL,
		Brand:        target.Brand,
		Model:        target.Model,
		ModelDetail:  s.ModelDetail,
		Price:        normalize.ParseCurrency(s.RawPrice),
		Year:         normalize.ParseYear(s.RawYear),
		Odometer:     normalize.ParseDistance(s.RawOdometer),
		Color:        s.Color,
		FuelType:     e.FuelType.Or(""),
		Transmission: e.Transmission.Or(""),
		PaintedParts: e.PaintedParts,
		SwappedParts: e.SwappedParts,
		DamageScore:  e.DamageScore,
		Province:     province,
		District:     district,
	}
}

func (c *Crawler) pace(ctx context.Context, min, max time.Duration) {
	if max <= min {
		c.opts.Sleep(ctx, min)
		return
	}
	jitter := time.Duration(rand.Int63n(int64(max - min)))
	c.opts.Sleep(ctx, min+jitter)
}

// resolveURL makes a relative detail link absolute against the index
// page host.
func resolveURL(base, ref string) string {
	if ref == "" {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

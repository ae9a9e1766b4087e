// Package events publishes advisory notifications for the out-of-band
// collaborators (price scorer, dashboard). The store is the durable
// hand-off; these events only wake subscribers up sooner, so publish
// failures are logged and never fail the run.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ekerdev/vehicle-ingest/internal/models"
)

type EventType string

const (
	// EventTypeListingUpserted is published when a crawl run inserts a
	// listing not seen before.
	EventTypeListingUpserted EventType = "LISTING_UPSERTED"
	// EventTypeRunCompleted is published once per finished crawl run;
	// the scorer uses it as its trigger to sweep unannotated listings.
	EventTypeRunCompleted EventType = "RUN_COMPLETED"
)

type ListingUpsertedPayload struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	ListingNo string    `json:"listing_no"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	Price     int       `json:"price"`
	URL       string    `json:"url"`
}

// RunStats is the per-run counter block shared with the run summary
// log line.
type RunStats struct {
	Targets  int           `json:"targets"`
	Pages    int           `json:"pages"`
	Upserted int           `json:"upserted"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

type RunCompletedPayload struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Stats     RunStats  `json:"stats"`
}

// Publisher publishes to one Redis channel. A nil Publisher is valid
// and drops everything, which is how runs without Redis configured
// operate.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewPublisher(client *redis.Client, channel string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "events"),
	}
}

func (p *Publisher) ListingUpserted(ctx context.Context, runID string, l *models.Listing) {
	if p == nil {
		return
	}
	p.publish(ctx, ListingUpsertedPayload{
		EventID:   uuid.NewString(),
		EventType: EventTypeListingUpserted,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		ListingNo: l.ListingNo,
		Brand:     l.Brand,
		Model:     l.Model,
		Price:     l.Price,
		URL:       l.URL,
	})
}

func (p *Publisher) RunCompleted(ctx context.Context, runID string, stats RunStats) {
	if p == nil {
		return
	}
	p.publish(ctx, RunCompletedPayload{
		EventID:   uuid.NewString(),
		EventType: EventTypeRunCompleted,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Stats:     stats,
	})
}

func (p *Publisher) publish(ctx context.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal event", "error", err)
		return
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("failed to publish event", "channel", p.channel, "error", err)
	}
}

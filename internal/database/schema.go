package database

import (
	"context"
	"fmt"
)

// EnsureTable creates the listings table when absent, without any
// indexes. Split from EnsureSchema because the maintenance path must
// reconcile legacy duplicate rows before the unique identity index can
// be created over them.
func (s *Store) EnsureTable(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS listings (
		listing_no      TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		url             TEXT NOT NULL DEFAULT '',
		brand           TEXT NOT NULL DEFAULT '',
		model           TEXT NOT NULL DEFAULT '',
		model_detail    TEXT NOT NULL DEFAULT '',
		price           BIGINT NOT NULL DEFAULT 0,
		year            INT NOT NULL DEFAULT 0,
		odometer        BIGINT NOT NULL DEFAULT 0,
		color           TEXT NOT NULL DEFAULT '',
		fuel_type       TEXT NOT NULL DEFAULT '',
		transmission    TEXT NOT NULL DEFAULT '',
		painted_parts   JSONB NOT NULL DEFAULT '[]',
		swapped_parts   JSONB NOT NULL DEFAULT '[]',
		damage_score    INT NOT NULL DEFAULT 0,
		province        TEXT NOT NULL DEFAULT '',
		district        TEXT NOT NULL DEFAULT '',
		predicted_price BIGINT,
		is_deal         BOOLEAN,
		price_delta     BIGINT,
		annotated_at    TIMESTAMPTZ,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return classify(fmt.Errorf("failed to ensure listings table: %w", err))
	}

	return nil
}

// EnsureSchema creates the listings table and its indexes when absent.
// Runs at startup of both binaries, mirroring the index set the
// dashboard and scorer filter on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.EnsureTable(ctx); err != nil {
		return err
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS listings_listing_no_key ON listings (listing_no)`,
		`CREATE INDEX IF NOT EXISTS listings_url_idx ON listings (url)`,
		`CREATE INDEX IF NOT EXISTS listings_brand_idx ON listings (brand)`,
		`CREATE INDEX IF NOT EXISTS listings_model_idx ON listings (model)`,
		`CREATE INDEX IF NOT EXISTS listings_price_idx ON listings (price)`,
		`CREATE INDEX IF NOT EXISTS listings_year_idx ON listings (year)`,
		`CREATE INDEX IF NOT EXISTS listings_is_deal_idx ON listings (is_deal)`,
		`CREATE INDEX IF NOT EXISTS listings_updated_at_idx ON listings (updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS listings_brand_model_idx ON listings (brand, model)`,
		`CREATE INDEX IF NOT EXISTS listings_brand_price_idx ON listings (brand, price)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify(fmt.Errorf("failed to ensure schema: %w", err))
		}
	}

	return nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekerdev/vehicle-ingest/internal/models"
)

// execer is satisfied by both the pool and a transaction, so the
// housekeeping statements can run standalone or inside Housekeep's
// transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const listingColumns = `listing_no, title, url, brand, model, model_detail,
	price, year, odometer, color, fuel_type, transmission,
	painted_parts, swapped_parts, damage_score, province, district,
	predicted_price, is_deal, price_delta, annotated_at,
	first_seen, updated_at`

// UpsertListing inserts a listing or replaces its scraped fields in a
// single atomic statement keyed by listing_no. The annotation columns
// and first_seen are never touched here; only the scorer writes
// annotations. Returns whether a new row was created.
func (s *Store) UpsertListing(ctx context.Context, l *models.Listing) (bool, error) {
	paintedJSON, err := json.Marshal(emptyIfNil(l.PaintedParts))
	if err != nil {
		return false, fmt.Errorf("failed to marshal painted parts: %w", err)
	}
	swappedJSON, err := json.Marshal(emptyIfNil(l.SwappedParts))
	if err != nil {
		return false, fmt.Errorf("failed to marshal swapped parts: %w", err)
	}

	query := `
		INSERT INTO listings (
			listing_no, title, url, brand, model, model_detail,
			price, year, odometer, color, fuel_type, transmission,
			painted_parts, swapped_parts, damage_score, province, district
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (listing_no) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			model_detail = EXCLUDED.model_detail,
			price = EXCLUDED.price,
			year = EXCLUDED.year,
			odometer = EXCLUDED.odometer,
			color = EXCLUDED.color,
			fuel_type = EXCLUDED.fuel_type,
			transmission = EXCLUDED.transmission,
			painted_parts = EXCLUDED.painted_parts,
			swapped_parts = EXCLUDED.swapped_parts,
			damage_score = EXCLUDED.damage_score,
			province = EXCLUDED.province,
			district = EXCLUDED.district,
			updated_at = NOW()
		RETURNING (xmax = 0), first_seen, updated_at`

	var inserted bool
	err = s.pool.QueryRow(ctx, query,
		l.ListingNo, l.Title, l.URL, l.Brand, l.Model, l.ModelDetail,
		l.Price, l.Year, l.Odometer, l.Color, l.FuelType, l.Transmission,
		paintedJSON, swappedJSON, l.DamageScore, l.Province, l.District,
	).Scan(&inserted, &l.FirstSeen, &l.LastUpdated)

	if err != nil {
		return false, classify(fmt.Errorf("failed to upsert listing %s: %w", l.ListingNo, err))
	}

	return inserted, nil
}

// GetListing returns the stored record for a listing number, or nil
// when absent.
func (s *Store) GetListing(ctx context.Context, listingNo string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE listing_no = $1`

	l, err := scanListing(s.pool.QueryRow(ctx, query, listingNo))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get listing %s: %w", listingNo, err))
	}

	return l, nil
}

// FindMissingAnnotation returns listings the external scorer has not
// yet priced. The result is a finite snapshot; callers re-query rather
// than holding a live cursor.
func (s *Store) FindMissingAnnotation(ctx context.Context) ([]*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE predicted_price IS NULL OR predicted_price = 0
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query unannotated listings: %w", err))
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return listings, nil
}

// UpdateAnnotation is the scorer's narrow write path: it touches only
// the annotation block, never scraped fields or updated_at.
func (s *Store) UpdateAnnotation(ctx context.Context, listingNo string, ann models.Annotation) error {
	query := `
		UPDATE listings SET
			predicted_price = $2,
			is_deal = $3,
			price_delta = $4,
			annotated_at = NOW()
		WHERE listing_no = $1`

	tag, err := s.pool.Exec(ctx, query, listingNo, ann.PredictedPrice, ann.IsDeal, ann.PriceDelta)
	if err != nil {
		return classify(fmt.Errorf("failed to update annotation for %s: %w", listingNo, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no listing with number %s", listingNo)
	}

	return nil
}

// ReconcileDuplicates keeps the most recently updated row per
// listing_no and deletes the rest. Needed for data imported from the
// era when rows were keyed by URL. Row-level deletes only, so it is
// safe alongside upserts targeting other identities.
func (s *Store) ReconcileDuplicates(ctx context.Context) (int, error) {
	return reconcileDuplicates(ctx, s.pool)
}

func reconcileDuplicates(ctx context.Context, q execer) (int, error) {
	query := `
		WITH ranked AS (
			SELECT ctid,
			       ROW_NUMBER() OVER (
			           PARTITION BY listing_no
			           ORDER BY updated_at DESC, ctid DESC
			       ) AS rn
			FROM listings
		)
		DELETE FROM listings
		WHERE ctid IN (SELECT ctid FROM ranked WHERE rn > 1)`

	tag, err := q.Exec(ctx, query)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to reconcile duplicates: %w", err))
	}

	return int(tag.RowsAffected()), nil
}

// PruneOlderThan removes listings not re-seen since the cutoff. This is
// the maintenance path; the crawl path never deletes.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return pruneOlderThan(ctx, s.pool, age)
}

func pruneOlderThan(ctx context.Context, q execer, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)

	tag, err := q.Exec(ctx, `DELETE FROM listings WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to prune old listings: %w", err))
	}

	return int(tag.RowsAffected()), nil
}

// Housekeep runs duplicate reconciliation and age pruning in a single
// transaction, so a partly applied cleanup never commits. An age of
// zero or less disables pruning.
func (s *Store) Housekeep(ctx context.Context, age time.Duration) (reconciled, pruned int, err error) {
	err = s.Transaction(ctx, func(tx pgx.Tx) error {
		var txErr error
		if reconciled, txErr = reconcileDuplicates(ctx, tx); txErr != nil {
			return txErr
		}
		if age > 0 {
			if pruned, txErr = pruneOlderThan(ctx, tx, age); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return reconciled, pruned, nil
}

// DeleteListings removes the given identities. Maintenance use only.
func (s *Store) DeleteListings(ctx context.Context, listingNos []string) (int, error) {
	if len(listingNos) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE listing_no = ANY($1)`, listingNos)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to delete listings: %w", err))
	}

	return int(tag.RowsAffected()), nil
}

// BrandCount is one row of the brand distribution.
type BrandCount struct {
	Brand string `json:"brand"`
	Count int    `json:"count"`
}

// Stats summarizes the store for the ops surface.
type Stats struct {
	Total      int          `json:"total"`
	Deals      int          `json:"deals"`
	AvgPrice   int          `json:"avg_price"`
	ByBrand    []BrandCount `json:"by_brand"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_deal),
		       COALESCE(AVG(price) FILTER (WHERE price > 0), 0)::BIGINT
		FROM listings`
	if err := s.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Deals, &stats.AvgPrice); err != nil {
		return nil, classify(fmt.Errorf("failed to query stats: %w", err))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT brand, COUNT(*) FROM listings GROUP BY brand ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query brand distribution: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var bc BrandCount
		if err := rows.Scan(&bc.Brand, &bc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan brand count: %w", err)
		}
		stats.ByBrand = append(stats.ByBrand, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return stats, nil
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var (
		l              models.Listing
		paintedJSON    []byte
		swappedJSON    []byte
		predictedPrice sql.NullInt64
		isDeal         sql.NullBool
		priceDelta     sql.NullInt64
		annotatedAt    sql.NullTime
	)

	err := row.Scan(
		&l.ListingNo, &l.Title, &l.URL, &l.Brand, &l.Model, &l.ModelDetail,
		&l.Price, &l.Year, &l.Odometer, &l.Color, &l.FuelType, &l.Transmission,
		&paintedJSON, &swappedJSON, &l.DamageScore, &l.Province, &l.District,
		&predictedPrice, &isDeal, &priceDelta, &annotatedAt,
		&l.FirstSeen, &l.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(paintedJSON, &l.PaintedParts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal painted parts: %w", err)
	}
	if err := json.Unmarshal(swappedJSON, &l.SwappedParts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal swapped parts: %w", err)
	}

	if annotatedAt.Valid {
		l.Annotation = &models.Annotation{
			PredictedPrice: int(predictedPrice.Int64),
			IsDeal:         isDeal.Bool,
			PriceDelta:     int(priceDelta.Int64),
			UpdatedAt:      annotatedAt.Time,
		}
	}

	return &l, nil
}

func emptyIfNil(parts []string) []string {
	if parts == nil {
		return []string{}
	}
	return parts
}

package models

import (
	"time"
)

// Listing is one vehicle advertisement reconciled into the store.
// ListingNo is the site-assigned identity and the sole deduplication key.
type Listing struct {
	ListingNo    string    `json:"listing_no"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	ModelDetail  string    `json:"model_detail"`
	Price        int       `json:"price"`
	Year         int       `json:"year"`
	Odometer     int       `json:"odometer"`
	Color        string    `json:"color"`
	FuelType     string    `json:"fuel_type"`
	Transmission string    `json:"transmission"`
	PaintedParts []string  `json:"painted_parts"`
	SwappedParts []string  `json:"swapped_parts"`
	DamageScore  int       `json:"damage_score"`
	Province     string    `json:"province"`
	District     string    `json:"district"`
	FirstSeen    time.Time `json:"first_seen"`
	LastUpdated  time.Time `json:"last_updated"`

	// Annotation is written only by the external price scorer. The crawl
	// path must never touch it.
	Annotation *Annotation `json:"annotation,omitempty"`
}

// Annotation is the scorer-owned block on a listing.
type Annotation struct {
	PredictedPrice int       `json:"predicted_price"`
	IsDeal         bool      `json:"is_deal"`
	PriceDelta     int       `json:"price_delta"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Summary is the projection of one index-page row. Price and location
// are kept raw; normalization happens at merge time.
type Summary struct {
	ListingNo    string
	Title        string
	DetailURL    string
	RawPrice     string
	ModelDetail  string
	RawYear      string
	RawOdometer  string
	Color        string
	RawLocation  string
}

// Enrichment is the projection of one detail page.
type Enrichment struct {
	FuelType     Field
	Transmission Field
	PaintedParts []string
	SwappedParts []string
	DamageScore  int
}

// FieldState distinguishes a field that was found from one the page
// lacked and one that was present but unparsable.
type FieldState int

const (
	FieldAbsent FieldState = iota
	FieldPresent
	FieldMalformed
)

// Field is a tagged extraction result so absence and malformance stay
// visible in logs instead of collapsing into a silent default.
type Field struct {
	Value string
	State FieldState
}

func PresentField(v string) Field { return Field{Value: v, State: FieldPresent} }

func (f Field) Or(fallback string) string {
	if f.State == FieldPresent {
		return f.Value
	}
	return fallback
}

func (f FieldState) String() string {
	switch f {
	case FieldPresent:
		return "present"
	case FieldMalformed:
		return "malformed"
	default:
		return "absent"
	}
}

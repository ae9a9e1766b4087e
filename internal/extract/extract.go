// Package extract parses raw index and detail page content into
// structured records. The source markup has drifted over the years, so
// every selector miss degrades to an absent field instead of failing
// the listing, and the index column order is pinned behind a named,
// versioned layout so drift is detectable instead of silently
// misassigning cells.
package extract

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ekerdev/vehicle-ingest/internal/models"
)

// IndexLayout names the positional table cells of one index-row markup
// version.
type IndexLayout struct {
	Version        string
	ModelDetailCol int
	YearCol        int
	OdometerCol    int
	ColorCol       int
	LocationCol    int
}

// DefaultIndexLayout matches the listing table the site has served
// since the 2023 redesign.
func DefaultIndexLayout() IndexLayout {
	return IndexLayout{
		Version:        "search-results-2023",
		ModelDetailCol: 1,
		YearCol:        3,
		OdometerCol:    4,
		ColorCol:       5,
		LocationCol:    8,
	}
}

// noDamageMarkers are the phrasings with which a detail page states
// that no damage record exists; any of them forces the score to zero.
var noDamageMarkers = []string{
	"tramer kaydı bulunmamaktadır",
	"hasar kaydı yok",
}

type Extractor struct {
	layout        IndexLayout
	paintedWeight int
	swappedWeight int
	logger        *slog.Logger
}

func New(layout IndexLayout, paintedWeight, swappedWeight int, logger *slog.Logger) *Extractor {
	return &Extractor{
		layout:        layout,
		paintedWeight: paintedWeight,
		swappedWeight: swappedWeight,
		logger:        logger.With("component", "extractor", "layout", layout.Version),
	}
}

// Index parses an index page into row summaries. Rows without a
// data-id are ad or placeholder rows and are skipped. An empty result
// is the normal end-of-catalog signal, never an error.
func (e *Extractor) Index(html string) []models.Summary {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("index page unparsable", "error", err)
		return nil
	}

	var summaries []models.Summary

	doc.Find("tr.searchResultsItem").Each(func(_ int, row *goquery.Selection) {
		listingNo, ok := row.Attr("data-id")
		if !ok || strings.TrimSpace(listingNo) == "" {
			return
		}

		titleEl := row.Find(".classifiedTitle").First()
		detailURL, _ := titleEl.Attr("href")

		cells := row.Find("td")
		cellText := func(i int) string {
			if i >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		summaries = append(summaries, models.Summary{
			ListingNo:   strings.TrimSpace(listingNo),
			Title:       strings.TrimSpace(titleEl.Text()),
			DetailURL:   strings.TrimSpace(detailURL),
			RawPrice:    strings.TrimSpace(row.Find(".searchResultsPriceValue").First().Text()),
			ModelDetail: cellText(e.layout.ModelDetailCol),
			RawYear:     cellText(e.layout.YearCol),
			RawOdometer: cellText(e.layout.OdometerCol),
			Color:       cellText(e.layout.ColorCol),
			RawLocation: locationText(cells, e.layout.LocationCol),
		})
	})

	return summaries
}

// locationText joins the location cell's child nodes with spaces; the
// site separates province and district with a <br>, which plain Text()
// would run together.
func locationText(cells *goquery.Selection, col int) string {
	if col >= cells.Length() {
		return ""
	}
	var parts []string
	cells.Eq(col).Contents().Each(func(_ int, node *goquery.Selection) {
		if t := strings.TrimSpace(node.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// Detail parses a detail page into enrichment data. Missing sections
// yield empty lists and absent fields, never an error.
func (e *Extractor) Detail(html string) models.Enrichment {
	enrichment := models.Enrichment{
		PaintedParts: []string{},
		SwappedParts: []string{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("detail page unparsable", "error", err)
		return enrichment
	}

	doc.Find(".classifiedInfoList li").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("strong").First().Text())
		if label == "" {
			return
		}
		value := strings.TrimSpace(strings.Replace(row.Text(), label, "", 1))

		switch {
		case strings.Contains(label, "Yakıt"):
			enrichment.FuelType = labeledField(value)
		case strings.Contains(label, "Vites"):
			enrichment.Transmission = labeledField(value)
		}
	})

	doc.Find(".classified-expertise-list li, .damage-history li").Each(func(_ int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "boyalı") || strings.Contains(lower, "boyali"):
			enrichment.PaintedParts = append(enrichment.PaintedParts, text)
		case strings.Contains(lower, "değişen") || strings.Contains(lower, "degisen"):
			enrichment.SwappedParts = append(enrichment.SwappedParts, text)
		}
	})

	enrichment.DamageScore = e.damageScore(doc, enrichment)

	return enrichment
}

// damageScore applies the configured weights, overridden to zero when
// the page states no damage record exists regardless of stray item
// text elsewhere.
func (e *Extractor) damageScore(doc *goquery.Document, enrichment models.Enrichment) int {
	pageText := strings.ToLower(doc.Text())
	for _, marker := range noDamageMarkers {
		if strings.Contains(pageText, marker) {
			return 0
		}
	}

	return len(enrichment.PaintedParts)*e.paintedWeight +
		len(enrichment.SwappedParts)*e.swappedWeight
}

// labeledField tags a label that was found: a value makes it present,
// a label with nothing behind it is malformed rather than absent.
func labeledField(value string) models.Field {
	if value == "" {
		return models.Field{State: models.FieldMalformed}
	}
	return models.PresentField(value)
}

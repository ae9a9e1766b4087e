// Package normalize converts site-formatted text into typed values.
// Scraped text is inconsistent by nature, so every function here is
// total: bad input degrades to a zero value instead of an error, which
// keeps one mangled field from aborting a multi-hour run.
package normalize

import (
	"strconv"
	"strings"
)

// ParseCurrency turns a price string like "1.250.000 TL" into 1250000.
// Returns 0 when nothing numeric remains after stripping.
func ParseCurrency(text string) int {
	return parseGrouped(text, "TL")
}

// ParseDistance turns an odometer string like "98.500 km" into 98500.
func ParseDistance(text string) int {
	return parseGrouped(text, "km")
}

func parseGrouped(text, suffix string) int {
	clean := strings.TrimSpace(text)
	clean = strings.ReplaceAll(clean, suffix, "")
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return 0
	}
	n, err := strconv.Atoi(clean)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseYear parses a model-year cell, 0 on failure.
func ParseYear(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SplitLocation splits free-text location into (province, district).
// The site renders these as whitespace-separated tokens; either may be
// missing, in which case the empty string is returned.
func SplitLocation(text string) (province, district string) {
	parts := strings.Fields(text)
	if len(parts) > 0 {
		province = parts[0]
	}
	if len(parts) > 1 {
		district = parts[1]
	}
	return province, district
}

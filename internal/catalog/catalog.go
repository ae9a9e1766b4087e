// Package catalog holds the static brand/model crawl targets. Adding a
// brand or model is a configuration change (JSON file), never a code
// change in the pipeline.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Target is one (brand, model) crawl target. BaseURL is the index-page
// URL without pagination parameters.
type Target struct {
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
	BaseURL     string `json:"url"`
}

// Key returns the "brand model" category key stored on listings.
func (t Target) Key() string {
	return t.Brand + " " + t.Model
}

// PageURL computes the index URL for a zero-based page. The catalog is
// paginated by a computed offset, not by following next links.
func (t Target) PageURL(page, pageSize int) string {
	offset := page * pageSize
	sep := "?"
	if strings.Contains(t.BaseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spagingOffset=%d", t.BaseURL, sep, offset)
}

// Catalog is the ordered target list for one crawl run.
type Catalog struct {
	Targets []Target
}

// Load returns the catalog from the given JSON file, or the built-in
// default when path is empty. Models named in skip are filtered out.
func Load(path string, skip []string) (*Catalog, error) {
	targets := defaultTargets()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		var fromFile []Target
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file: %w", err)
		}
		targets = fromFile
	}

	skipSet := make(map[string]bool, len(skip))
	for _, m := range skip {
		skipSet[strings.TrimSpace(m)] = true
	}

	c := &Catalog{}
	for _, t := range targets {
		if t.Brand == "" || t.Model == "" || t.BaseURL == "" {
			return nil, fmt.Errorf("catalog target missing brand, model or url: %+v", t)
		}
		if skipSet[t.Model] {
			continue
		}
		c.Targets = append(c.Targets, t)
	}

	return c, nil
}

// defaultTargets mirrors the catalog the pipeline has always crawled.
func defaultTargets() []Target {
	return []Target{
		{Brand: "tesla", Model: "model-y", DisplayName: "Model Y", BaseURL: "https://www.sahibinden.com/tesla-model-y?sorting=date_desc"},
		{Brand: "tesla", Model: "model-3", DisplayName: "Model 3", BaseURL: "https://www.sahibinden.com/tesla-model-3?sorting=date_desc"},
		{Brand: "tesla", Model: "model-s", DisplayName: "Model S", BaseURL: "https://www.sahibinden.com/tesla-model-s?sorting=date_desc"},
		{Brand: "mercedes", Model: "amg-gt", DisplayName: "AMG GT", BaseURL: "https://www.sahibinden.com/mercedes-benz-amg-gt?sorting=date_desc"},
		{Brand: "mercedes", Model: "c-serisi", DisplayName: "C Serisi", BaseURL: "https://www.sahibinden.com/mercedes-benz-c-serisi?sorting=date_desc"},
		{Brand: "mercedes", Model: "e-serisi", DisplayName: "E Serisi", BaseURL: "https://www.sahibinden.com/mercedes-benz-e-serisi?sorting=date_desc"},
		{Brand: "bmw", Model: "3-serisi", DisplayName: "3 Serisi", BaseURL: "https://www.sahibinden.com/bmw-3-serisi?sorting=date_desc"},
		{Brand: "bmw", Model: "5-serisi", DisplayName: "5 Serisi", BaseURL: "https://www.sahibinden.com/bmw-5-serisi?sorting=date_desc"},
		{Brand: "bmw", Model: "x5", DisplayName: "X5", BaseURL: "https://www.sahibinden.com/bmw-x5?sorting=date_desc"},
		{Brand: "volvo", Model: "s90", DisplayName: "S90", BaseURL: "https://www.sahibinden.com/otomobil-volvo-s90?sorting=date_desc"},
		{Brand: "volvo", Model: "xc60", DisplayName: "XC60", BaseURL: "https://www.sahibinden.com/otomobil-volvo-xc60?sorting=date_desc"},
		{Brand: "volvo", Model: "xc90", DisplayName: "XC90", BaseURL: "https://www.sahibinden.com/otomobil-volvo-xc90?sorting=date_desc"},
		{Brand: "volkswagen", Model: "polo", DisplayName: "Polo", BaseURL: "https://www.sahibinden.com/volkswagen-polo?sorting=date_desc"},
		{Brand: "volkswagen", Model: "golf", DisplayName: "Golf", BaseURL: "https://www.sahibinden.com/volkswagen-golf?sorting=date_desc"},
		{Brand: "volkswagen", Model: "passat", DisplayName: "Passat", BaseURL: "https://www.sahibinden.com/volkswagen-passat?sorting=date_desc"},
		{Brand: "opel", Model: "corsa", DisplayName: "Corsa", BaseURL: "https://www.sahibinden.com/opel-corsa?sorting=date_desc"},
		{Brand: "opel", Model: "astra", DisplayName: "Astra", BaseURL: "https://www.sahibinden.com/opel-astra?sorting=date_desc"},
		{Brand: "fiat", Model: "egea", DisplayName: "Egea", BaseURL: "https://www.sahibinden.com/fiat-egea?sorting=date_desc"},
		{Brand: "fiat", Model: "doblo", DisplayName: "Doblo", BaseURL: "https://www.sahibinden.com/fiat-doblo?sorting=date_desc"},
		{Brand: "renault", Model: "clio", DisplayName: "Clio", BaseURL: "https://www.sahibinden.com/renault-clio?sorting=date_desc"},
		{Brand: "renault", Model: "megane", DisplayName: "Megane", BaseURL: "https://www.sahibinden.com/renault-megane?sorting=date_desc"},
		{Brand: "toyota", Model: "corolla", DisplayName: "Corolla", BaseURL: "https://www.sahibinden.com/toyota-corolla?sorting=date_desc"},
		{Brand: "toyota", Model: "c-hr", DisplayName: "C-HR", BaseURL: "https://www.sahibinden.com/toyota-c-hr?sorting=date_desc"},
		{Brand: "honda", Model: "civic", DisplayName: "Civic", BaseURL: "https://www.sahibinden.com/honda-civic?sorting=date_desc"},
	}
}

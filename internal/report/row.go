// Package report holds the Search Console row model and the conventions for
// storing a pull as one JSON object: date windows, object names and encoding.
package report

import (
	"fmt"
	"strings"
)

// Row is one search-analytics row for a dimension combination.
// Field names match the provider's JSON so stored objects round-trip unchanged.
type Row struct {
	Keys        []string `json:"keys"`
	Clicks      int64    `json:"clicks"`
	Impressions int64    `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// URL returns the first dimension value, or "unknown" when the row has none.
func (r Row) URL() string {
	if len(r.Keys) == 0 || r.Keys[0] == "" {
		return "unknown"
	}
	return r.Keys[0]
}

// Describe renders the row as a single descriptive line, used as embedding
// input and as retrieved context.
func Describe(r Row) string {
	return fmt.Sprintf("URL: %s, Clicks: %d, Impressions: %d, CTR: %.2f%%, Position: %.1f",
		r.URL(), r.Clicks, r.Impressions, r.CTR*100, r.Position)
}

// WordCount counts whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

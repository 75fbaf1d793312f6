package serp

import (
	"context"
	"encoding/json"
)

// OrganicResult is a single non-ad search result, ranked by relevance.
// Position 1 is the best result.
type OrganicResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// Result is the provider response for one query.
type Result struct {
	Query          string          `json:"query"`
	OrganicResults []OrganicResult `json:"organic_results"`
	// Raw is the unmodified provider payload, kept for downstream consumers
	// that want fields this package does not model.
	Raw json.RawMessage `json:"-"`
}

// Client abstracts a keyword search provider. Implementations may use
// official APIs or scraping. Transport and provider errors propagate to the
// caller; they are converted into a terminal failed event only at the
// pipeline boundary.
type Client interface {
	Search(ctx context.Context, query, location, language string) (*Result, error)
}

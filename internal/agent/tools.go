package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/rankpilot/rankpilot/internal/fetch"
	"github.com/rankpilot/rankpilot/internal/serp"
)

// toolResultLimit caps how many organic results the search tool hands back
// to the model.
const toolResultLimit = 5

// contentPreviewLimit caps the page text handed back by the fetch tool so a
// single large page cannot blow out the model context.
const contentPreviewLimit = 2000

// SearchTool exposes the search client to a role as a callable tool.
type SearchTool struct {
	search          serp.Client
	defaultLocation string
	language        string
}

// NewSearchTool binds a search client as a role tool. defaultLocation is used
// when the model omits a location.
func NewSearchTool(search serp.Client, defaultLocation, language string) *SearchTool {
	if defaultLocation == "" {
		defaultLocation = "United States"
	}
	if language == "" {
		language = "en"
	}
	return &SearchTool{search: search, defaultLocation: defaultLocation, language: language}
}

func (t *SearchTool) Name() string { return "search_google" }

func (t *SearchTool) Description() string {
	return "Search Google for a query and return the top organic results as JSON."
}

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query.",
			},
			"location": map[string]any{
				"type":        "string",
				"description": "Geographic location for the search.",
			},
		},
		"required": []string{"query"},
	}
}

// Invoke runs the search and returns the top results as a JSON string.
// Provider failures propagate as errors; they abort the run and are handled
// at the pipeline boundary.
func (t *SearchTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query    string `json:"query"`
		Location string `json:"location"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid search arguments: %w", err)
	}
	if params.Location == "" {
		params.Location = t.defaultLocation
	}

	res, err := t.search.Search(ctx, params.Query, params.Location, t.language)
	if err != nil {
		return "", err
	}

	organic := res.OrganicResults
	if len(organic) > toolResultLimit {
		organic = organic[:toolResultLimit]
	}

	out, err := json.MarshalIndent(map[string]any{
		"query":   params.Query,
		"results": organic,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode search results: %w", err)
	}
	return string(out), nil
}

// FetchTool exposes the page fetcher to a role as a callable tool.
type FetchTool struct {
	fetcher *fetch.Fetcher
	// unboundedText disables the content preview truncation; used by the
	// standalone page-fetch role where the caller wants the whole page.
	unboundedText bool
}

// NewFetchTool binds the fetcher as a role tool with the content preview cap.
func NewFetchTool(fetcher *fetch.Fetcher) *FetchTool {
	return &FetchTool{fetcher: fetcher}
}

// NewUnboundedFetchTool binds the fetcher without the preview cap.
func NewUnboundedFetchTool(fetcher *fetch.Fetcher) *FetchTool {
	return &FetchTool{fetcher: fetcher, unboundedText: true}
}

func (t *FetchTool) Name() string { return "fetch_url_content" }

func (t *FetchTool) Description() string {
	return "Fetch a URL and extract its title, meta description, and readable text content."
}

func (t *FetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch.",
			},
		},
		"required": []string{"url"},
	}
}

// Invoke fetches the page and returns its content as a JSON string. Fetch
// failures are returned in-band as an error-shaped JSON payload so the model
// can reason about them; the run is never aborted by an unreachable page.
func (t *FetchTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid fetch arguments: %w", err)
	}

	page := t.fetcher.Fetch(ctx, params.URL)
	if page.Failed() {
		out, _ := json.Marshal(map[string]string{
			"url":   params.URL,
			"error": page.Error,
		})
		return string(out), nil
	}

	content := page.Text
	if !t.unboundedText && len(content) > contentPreviewLimit {
		content = truncateUTF8(content, contentPreviewLimit)
	}

	out, err := json.MarshalIndent(map[string]any{
		"url":              page.URL,
		"title":            page.Title,
		"meta_description": page.MetaDescription,
		"content":          content,
		"content_length":   page.TextLength,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode page content: %w", err)
	}
	return string(out), nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a multi-byte
// rune at the boundary.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

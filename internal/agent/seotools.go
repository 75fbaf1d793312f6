package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rankpilot/rankpilot/internal/fetch"
)

// sitemapURLLimit caps how many sitemap URLs are handed back to the model.
const sitemapURLLimit = 50

// KeywordUsageTool fetches a page and reports how the given keywords are
// used in its text.
type KeywordUsageTool struct {
	fetcher *fetch.Fetcher
}

// NewKeywordUsageTool binds the fetcher as a keyword-usage analysis tool.
func NewKeywordUsageTool(fetcher *fetch.Fetcher) *KeywordUsageTool {
	return &KeywordUsageTool{fetcher: fetcher}
}

func (t *KeywordUsageTool) Name() string { return "analyze_keyword_usage" }

func (t *KeywordUsageTool) Description() string {
	return "Fetch a page and report how often each keyword appears in its text, with example sentences."
}

func (t *KeywordUsageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The page URL to analyze.",
			},
			"keywords": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "The keywords to look for.",
			},
		},
		"required": []string{"url", "keywords"},
	}
}

// Invoke fetches the page and returns per-keyword occurrence counts and
// sentence excerpts as JSON. Fetch failures come back in-band so the model
// can move on to another page.
func (t *KeywordUsageTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		URL      string   `json:"url"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid keyword analysis arguments: %w", err)
	}

	page := t.fetcher.Fetch(ctx, params.URL)
	if page.Failed() {
		out, _ := json.Marshal(map[string]string{
			"url":   params.URL,
			"error": page.Error,
		})
		return string(out), nil
	}

	out, err := json.MarshalIndent(map[string]any{
		"url":         page.URL,
		"title":       page.Title,
		"text_length": page.TextLength,
		"matches":     fetch.FindTermMatches(page.Text, params.Keywords),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode keyword matches: %w", err)
	}
	return string(out), nil
}

// SitemapTool lists the URLs a site publishes in its sitemap.
type SitemapTool struct {
	fetcher *fetch.Fetcher
}

// NewSitemapTool binds the fetcher's sitemap discovery as a role tool.
func NewSitemapTool(fetcher *fetch.Fetcher) *SitemapTool {
	return &SitemapTool{fetcher: fetcher}
}

func (t *SitemapTool) Name() string { return "list_sitemap_urls" }

func (t *SitemapTool) Description() string {
	return "Discover the pages a site lists in its sitemap.xml, following sitemap indexes."
}

func (t *SitemapTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The site or sitemap URL.",
			},
		},
		"required": []string{"url"},
	}
}

// Invoke returns the sitemap URLs as JSON. Missing or malformed sitemaps
// come back in-band; many sites simply have none.
func (t *SitemapTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid sitemap arguments: %w", err)
	}

	urls, err := t.fetcher.SitemapURLs(ctx, params.URL, sitemapURLLimit)
	if err != nil {
		out, _ := json.Marshal(map[string]string{
			"url":   params.URL,
			"error": err.Error(),
		})
		return string(out), nil
	}

	out, jsonErr := json.MarshalIndent(map[string]any{
		"url":   params.URL,
		"count": len(urls),
		"pages": urls,
	}, "", "  ")
	if jsonErr != nil {
		return "", fmt.Errorf("encode sitemap urls: %w", jsonErr)
	}
	return string(out), nil
}

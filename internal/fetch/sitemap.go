package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"go.uber.org/zap"
)

// maxSitemapDepth bounds recursion through nested sitemap indexes.
const maxSitemapDepth = 3

// SitemapURLs discovers the URLs a site lists in its sitemap. siteURL may
// point at the sitemap itself or at any page on the site, in which case
// /sitemap.xml at the site root is tried. Sitemap indexes are followed
// recursively. At most limit URLs are returned (0 means no cap).
func (f *Fetcher) SitemapURLs(ctx context.Context, siteURL string, limit int) ([]string, error) {
	target, err := resolveSitemapURL(siteURL)
	if err != nil {
		return nil, err
	}

	urls, err := f.readSitemap(ctx, target, maxSitemapDepth)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

func (f *Fetcher) readSitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("fetch: sitemap index nesting too deep")
	}

	body, err := f.fetchRaw(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var urls []string
	err = sitemap.Parse(bytes.NewReader(body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})
	if err == nil && len(urls) > 0 {
		return urls, nil
	}

	// Not a plain sitemap; try a sitemap index and recurse.
	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		return nil, fmt.Errorf("fetch: %s is not a sitemap or sitemap index", sitemapURL)
	}

	for _, nestedURL := range nested {
		nestedURLs, err := f.readSitemap(ctx, nestedURL, depth-1)
		if err != nil {
			f.logger.Warn("skipping nested sitemap",
				zap.String("url", nestedURL), zap.Error(err))
			continue
		}
		urls = append(urls, nestedURLs...)
	}
	return urls, nil
}

// fetchRaw retrieves a body without content extraction.
func (f *Fetcher) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UAPool.GetSequential())

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: %s returned status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return body, nil
}

func resolveSitemapURL(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("fetch: invalid site URL %q", siteURL)
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".xml") {
		return u.String(), nil
	}
	u.Path = "/sitemap.xml"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/internal/fingerprint"
	"github.com/rankpilot/rankpilot/internal/metrics"
	"github.com/rankpilot/rankpilot/pkg/httpclient"
	"github.com/rankpilot/rankpilot/pkg/proxy"
	"github.com/rankpilot/rankpilot/pkg/useragent"
)

// proxyKey carries the proxy chosen for one fetch through the request
// context to the transport's proxy callback.
type proxyKey struct{}

// PageContent is the outcome of a single page fetch. Failures are reported
// through the Error field rather than a returned error so that agent tool
// bindings can hand the failure back to the model in-band.
type PageContent struct {
	ID              string        `json:"id"`
	URL             string        `json:"url"`
	Title           string        `json:"title"`
	MetaDescription string        `json:"meta_description"`
	Text            string        `json:"text"`
	TextLength      int           `json:"text_length"`
	StatusCode      int           `json:"status_code"`
	Duration        time.Duration `json:"duration"`
	FetchedAt       time.Time     `json:"fetched_at"`
	Error           string        `json:"error,omitempty"`
}

// Failed reports whether the fetch ended in an error payload.
func (p *PageContent) Failed() bool { return p.Error != "" }

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	// RespectRobots enables a robots.txt check before each fetch.
	RespectRobots bool
	// Proxies rotates fetch traffic through a proxy pool. Nil means direct.
	Proxies *proxy.Pool
}

// Fetcher retrieves pages and extracts their readable content.
// By holding a single client across requests, connections are pooled for the
// lifetime of the Fetcher.
type Fetcher struct {
	config  Config
	client  *httpclient.Client
	auditor *robotsAuditor
	logger  *zap.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var proxyFunc func(*http.Request) (*url.URL, error)
	if cfg.Proxies != nil {
		proxyFunc = func(r *http.Request) (*url.URL, error) {
			u, _ := r.Context().Value(proxyKey{}).(*url.URL)
			return u, nil
		}
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("fetch: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: create client: %w", err)
	}

	f := &Fetcher{
		config: cfg,
		client: client,
		logger: logger,
	}
	if cfg.RespectRobots {
		f.auditor = newRobotsAuditor(client, logger)
	}
	return f, nil
}

// Fetch executes a GET request against targetURL and extracts the readable
// text, title, and meta description. Transport errors, timeouts, robots
// denials, and non-2xx statuses all come back as an error payload inside
// PageContent; the returned struct is never nil.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) *PageContent {
	start := time.Now()
	result := &PageContent{
		ID:        uuid.New().String(),
		URL:       targetURL,
		FetchedAt: start.UTC(),
	}

	fail := func(format string, args ...any) *PageContent {
		result.Error = fmt.Sprintf(format, args...)
		result.Duration = time.Since(start)
		metrics.RecordFetch(domainOf(targetURL), result.StatusCode, 0, result.Duration, true)
		f.logger.Debug("fetch failed", zap.String("url", targetURL), zap.String("error", result.Error))
		return result
	}

	ua := f.config.UAPool.GetSequential()

	if f.auditor != nil {
		allowed, err := f.auditor.isAllowed(ctx, targetURL, ua)
		if err != nil {
			return fail("robots check failed: %v", err)
		}
		if !allowed {
			return fail("fetch disallowed by robots.txt")
		}
	}

	var proxyURL *url.URL
	if f.config.Proxies != nil {
		if proxyURL = f.config.Proxies.Next(); proxyURL != nil {
			ctx = context.WithValue(ctx, proxyKey{}, proxyURL)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return fail("failed to create request: %v", err)
	}

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		if proxyURL != nil {
			_ = f.config.Proxies.MarkFailure(proxyURL)
		}
		return fail("request failed: %v", err)
	}
	defer resp.Body.Close()
	if proxyURL != nil {
		_ = f.config.Proxies.MarkSuccess(proxyURL)
	}

	result.StatusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("failed to read body: %v", err)
	}

	if vendor, blocked := detectBlock(resp.StatusCode, resp.Header, body); blocked {
		return fail("blocked by %s bot protection", vendor)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail("unexpected status %d", resp.StatusCode)
	}

	title, metaDesc, text, err := extract(body)
	if err != nil {
		return fail("failed to extract content: %v", err)
	}

	result.Title = title
	result.MetaDescription = metaDesc
	result.Text = text
	result.TextLength = len(text)
	result.Duration = time.Since(start)

	metrics.RecordFetch(domainOf(targetURL), resp.StatusCode, len(body), result.Duration, false)
	return result
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

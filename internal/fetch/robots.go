package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/pkg/httpclient"
)

// robotsAuditor caches and enforces robots.txt decisions per host.
// A missing or unreadable robots.txt defaults to allow.
type robotsAuditor struct {
	client *httpclient.Client
	logger *zap.Logger
	mu     sync.RWMutex
	cache  map[string]*robotstxt.RobotsData
}

func newRobotsAuditor(client *httpclient.Client, logger *zap.Logger) *robotsAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsAuditor{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// isAllowed determines if the given URL may be fetched by the provided
// User-Agent according to the host's robots.txt.
func (r *robotsAuditor) isAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow",
			zap.String("host", host), zap.Error(err))
		return true, nil
	}

	if data == nil {
		return true, nil
	}

	group := data.FindGroup(userAgent)
	return group.Test(u.Path), nil
}

func (r *robotsAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()

	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists = r.cache[host]
	if exists {
		return data, nil
	}

	robotsURL := fmt.Sprintf("%s/robots.txt", host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	// 4xx/5xx means no usable robots.txt; remember that and allow everything.
	if resp.StatusCode >= 400 {
		r.cache[host] = nil
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("read error: %w", err)
	}

	parsed, err := robotstxt.FromBytes(body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("parse error: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}

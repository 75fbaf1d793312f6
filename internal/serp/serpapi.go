package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/internal/metrics"
	"github.com/rankpilot/rankpilot/pkg/httpclient"
	"github.com/rankpilot/rankpilot/pkg/ratelimit"
)

const defaultBaseURL = "https://serpapi.com/search.json"

// ensure SerpAPI implements Client
var _ Client = (*SerpAPI)(nil)

// SerpAPIConfig configures the SerpAPI-backed Client.
type SerpAPIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Limiter paces outbound provider calls. Nil means unpaced.
	Limiter *ratelimit.Limiter
}

// SerpAPI performs Google searches through the SerpAPI HTTP endpoint.
type SerpAPI struct {
	cfg    SerpAPIConfig
	client *httpclient.Client
	logger *zap.Logger
}

// NewSerpAPI creates a SerpAPI client. The API key is required.
func NewSerpAPI(cfg SerpAPIConfig, logger *zap.Logger) (*SerpAPI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serp: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("serp: create client: %w", err)
	}

	return &SerpAPI{cfg: cfg, client: client, logger: logger}, nil
}

// Search runs one Google query for the given location and language and
// returns the ranked organic results. The `gl` country code is derived from
// the first two letters of the language, mirroring the provider convention.
func (s *SerpAPI) Search(ctx context.Context, query, location, language string) (*Result, error) {
	if language == "" {
		language = "en"
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("location", location)
	params.Set("hl", language)
	params.Set("gl", countryCode(language))
	params.Set("api_key", s.cfg.APIKey)

	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("serp: limiter: %w", err)
		}
	}

	reqURL := s.cfg.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("serp: create request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	metrics.RecordSerp(err)
	if err != nil {
		return nil, fmt.Errorf("serp: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("serp: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serp: provider returned status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var payload struct {
		OrganicResults []OrganicResult `json:"organic_results"`
		Error          string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("serp: parse response: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("serp: provider error: %s", payload.Error)
	}

	s.logger.Debug("search completed",
		zap.String("query", query),
		zap.String("location", location),
		zap.Int("results", len(payload.OrganicResults)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Result{
		Query:          query,
		OrganicResults: payload.OrganicResults,
		Raw:            json.RawMessage(body),
	}, nil
}

func countryCode(language string) string {
	if len(language) < 2 {
		return language
	}
	return language[:2]
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

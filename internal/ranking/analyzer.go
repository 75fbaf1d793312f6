package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rankpilot/rankpilot/internal/serp"
)

const (
	// rankDepth is how deep into the organic results the target URL is looked for.
	rankDepth = 20
	// competitorDepth is how many top results per keyword feed the competitor set.
	competitorDepth = 5
	// maxCompetitors caps the aggregated competitor set.
	maxCompetitors = 10

	defaultConcurrency = 3
)

// Result holds keyword rankings and the aggregated competitor set for one
// analysis run. It lives in memory for the duration of a pipeline run only.
type Result struct {
	// Rankings maps keyword to 1-based rank among the top organic results.
	// A nil entry means the target URL was not found in the top results.
	Rankings map[string]*int `json:"rankings"`
	// Competitors are up to maxCompetitors unique URLs that outrank or
	// accompany the target, in first-seen order (keyword order, then result
	// order within a keyword).
	Competitors []string `json:"competitors"`
	// Raw keeps the unmodified provider payload per keyword.
	Raw map[string]json.RawMessage `json:"-"`
}

// Analyzer locates the target URL among search results and aggregates
// competitor URLs across keywords.
type Analyzer struct {
	search      serp.Client
	concurrency int
	logger      *zap.Logger
}

// NewAnalyzer creates an Analyzer backed by the given search client.
func NewAnalyzer(search serp.Client, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		search:      search,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// Analyze searches every keyword and computes the target URL's rank per
// keyword plus the competitor set. Searches run concurrently since they are
// independent; assembly happens in keyword order so the output is
// deterministic regardless of completion order.
func (a *Analyzer) Analyze(ctx context.Context, targetURL string, keywords []string, location, language string) (*Result, error) {
	searches := make([]*serp.Result, len(keywords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, keyword := range keywords {
		g.Go(func() error {
			res, err := a.search.Search(gctx, keyword, location, language)
			if err != nil {
				return fmt.Errorf("search %q: %w", keyword, err)
			}
			searches[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Rankings: make(map[string]*int, len(keywords)),
		Raw:      make(map[string]json.RawMessage, len(keywords)),
	}

	target := strings.ToLower(targetURL)
	seen := make(map[string]struct{})

	for i, keyword := range keywords {
		organic := searches[i].OrganicResults
		result.Raw[keyword] = searches[i].Raw
		result.Rankings[keyword] = findRank(target, organic)

		for j, r := range organic {
			if j >= competitorDepth {
				break
			}
			link := r.Link
			if link == "" || strings.Contains(strings.ToLower(link), target) {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			result.Competitors = append(result.Competitors, link)
		}
	}

	if len(result.Competitors) > maxCompetitors {
		result.Competitors = result.Competitors[:maxCompetitors]
	}

	a.logger.Debug("ranking analysis complete",
		zap.String("url", targetURL),
		zap.Int("keywords", len(keywords)),
		zap.Int("competitors", len(result.Competitors)),
	)

	return result, nil
}

// findRank returns the 1-based position of the first of the top rankDepth
// organic results whose link contains the lowercased target URL as a
// substring, or nil if absent.
func findRank(target string, organic []serp.OrganicResult) *int {
	for i, r := range organic {
		if i >= rankDepth {
			break
		}
		if strings.Contains(strings.ToLower(r.Link), target) {
			rank := i + 1
			return &rank
		}
	}
	return nil
}

// Package pipeline sequences the SEO investigation: ranking analysis,
// optional agent investigation, analysis, and recommendation generation,
// reporting each step to the consumer as an ordered stream of progress
// events.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/internal/agent"
	"github.com/rankpilot/rankpilot/internal/metrics"
	"github.com/rankpilot/rankpilot/internal/ranking"
)

const (
	minKeywords = 1
	maxKeywords = 10

	minLocationLen = 2
	maxLocationLen = 100
)

// Request is the caller input for one investigation run.
type Request struct {
	URL      string   `json:"url"`
	Keywords []string `json:"keywords"`
	Location string   `json:"location"`
	Language string   `json:"language"`
}

// Validate rejects malformed requests before the pipeline starts: the URL
// must be absolute http(s), keywords 1 to 10 entries, location 2 to 100
// characters. An empty language defaults to "en".
func (r *Request) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url must be a well-formed absolute http(s) URL")
	}
	if len(r.Keywords) < minKeywords || len(r.Keywords) > maxKeywords {
		return fmt.Errorf("keywords must contain between %d and %d entries", minKeywords, maxKeywords)
	}
	for _, k := range r.Keywords {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("keywords must not be blank")
		}
	}
	if len(r.Location) < minLocationLen || len(r.Location) > maxLocationLen {
		return fmt.Errorf("location must be between %d and %d characters", minLocationLen, maxLocationLen)
	}
	if r.Language == "" {
		r.Language = "en"
	}
	return nil
}

// Roles are the agent capabilities the pipeline drives. Investigator may be
// nil when the investigation stage is disabled.
type Roles struct {
	Investigator *agent.Role
	Analyzer     *agent.Role
	Optimizer    *agent.Role
}

// Config selects pipeline variants.
type Config struct {
	// Investigate enables the agent-tool investigation stage between ranking
	// analysis and the analysis role.
	Investigate bool
}

// Pipeline orchestrates one investigation run per Run call. It holds no
// per-run state; concurrent runs are independent.
type Pipeline struct {
	rankings *ranking.Analyzer
	runner   agent.Runner
	roles    Roles
	cfg      Config
	logger   *zap.Logger
}

// New wires the orchestrator. rankings and runner are required; the
// investigator role is required only when cfg.Investigate is set.
func New(rankings *ranking.Analyzer, runner agent.Runner, roles Roles, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if rankings == nil {
		return nil, fmt.Errorf("pipeline: ranking analyzer is nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("pipeline: agent runner is nil")
	}
	if roles.Analyzer == nil || roles.Optimizer == nil {
		return nil, fmt.Errorf("pipeline: analyzer and optimizer roles are required")
	}
	if cfg.Investigate && roles.Investigator == nil {
		return nil, fmt.Errorf("pipeline: investigator role is required when investigation is enabled")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		rankings: rankings,
		runner:   runner,
		roles:    roles,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run starts one investigation and returns its ordered event stream. The
// channel is closed after the single terminal event. Events stop promptly
// once ctx is cancelled; in-flight provider calls may still complete and are
// discarded. The request must already be validated.
func (p *Pipeline) Run(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event)

	go func() {
		defer close(ch)
		start := time.Now()

		emit := func(ev Event) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- ev:
				return nil
			}
		}

		err := p.run(ctx, req, emit)
		if err == nil {
			metrics.RecordInvestigation(string(StatusCompleted), time.Since(start))
			return
		}

		// A gone consumer cancelled the context; there is nobody left to
		// receive a terminal event.
		if ctx.Err() != nil {
			p.logger.Info("investigation cancelled",
				zap.String("url", req.URL),
				zap.Duration("elapsed", time.Since(start)),
			)
			metrics.RecordInvestigation("cancelled", time.Since(start))
			return
		}

		p.logger.Warn("investigation failed",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		metrics.RecordInvestigation(string(StatusFailed), time.Since(start))
		_ = emit(Event{
			Status:   StatusFailed,
			Message:  fmt.Sprintf("Optimization failed: %v", err),
			Progress: 0,
		})
	}()

	return ch
}

// run executes the steps in order. Step failures are returned, not emitted;
// Run performs the single conversion into a terminal failed event.
func (p *Pipeline) run(ctx context.Context, req Request, emit func(Event) error) error {
	taskID := uuid.New().String()
	createdAt := time.Now().UTC()

	p.logger.Info("investigation started",
		zap.String("task_id", taskID),
		zap.String("url", req.URL),
		zap.Int("keywords", len(req.Keywords)),
		zap.String("location", req.Location),
	)

	if err := emit(Event{
		Status:   StatusPending,
		Message:  "Starting SEO analysis...",
		Progress: 0,
	}); err != nil {
		return err
	}

	if err := emit(Event{
		Status:   StatusAnalyzing,
		Message:  fmt.Sprintf("Analyzing rankings for %d keywords...", len(req.Keywords)),
		Progress: 20,
	}); err != nil {
		return err
	}

	rank, err := p.rankings.Analyze(ctx, req.URL, req.Keywords, req.Location, req.Language)
	if err != nil {
		return fmt.Errorf("ranking analysis: %w", err)
	}

	if err := emit(Event{
		Status:   StatusAnalyzing,
		Message:  "Rankings analyzed. Processing competitor data...",
		Progress: 40,
		Data: map[string]any{
			"rankings":    rank.Rankings,
			"competitors": rank.Competitors,
		},
	}); err != nil {
		return err
	}

	var investigation string
	if p.cfg.Investigate {
		if err := emit(Event{
			Status:   StatusAnalyzing,
			Message:  "Agent investigating target URL and competitors...",
			Progress: 50,
		}); err != nil {
			return err
		}

		investigation, err = p.runner.Run(ctx, p.roles.Investigator, investigationContext(req))
		if err != nil {
			return fmt.Errorf("investigation: %w", err)
		}
	}

	analysisProgress := 60
	optimizeProgress := 80
	if p.cfg.Investigate {
		analysisProgress = 70
		optimizeProgress = 85
	}

	if err := emit(Event{
		Status:   StatusAnalyzing,
		Message:  "Running SEO analysis...",
		Progress: analysisProgress,
	}); err != nil {
		return err
	}

	analysis, err := p.runner.Run(ctx, p.roles.Analyzer, analysisContext(req, rank, investigation))
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	if err := emit(Event{
		Status:   StatusOptimizing,
		Message:  "Generating optimization recommendations...",
		Progress: optimizeProgress,
	}); err != nil {
		return err
	}

	optimization, err := p.runner.Run(ctx, p.roles.Optimizer, optimizationContext(investigation, analysis))
	if err != nil {
		return fmt.Errorf("optimization: %w", err)
	}

	result := &OptimizationResult{
		ID:              taskID,
		URL:             req.URL,
		Keywords:        req.Keywords,
		Location:        req.Location,
		CurrentRankings: rank.Rankings,
		Competitors:     rank.Competitors,
		Recommendations: ParseRecommendations(optimization),
		Analysis:        analysis,
		CreatedAt:       createdAt,
		CompletedAt:     time.Now().UTC(),
	}

	p.logger.Info("investigation completed",
		zap.String("task_id", taskID),
		zap.Int("recommendations", len(result.Recommendations)),
	)

	return emit(Event{
		Status:   StatusCompleted,
		Message:  "Optimization complete!",
		Progress: 100,
		Data:     result,
	})
}

func investigationContext(req Request) string {
	keywords := strings.Join(req.Keywords, ", ")
	return fmt.Sprintf(`Target URL: %s
Keywords: %s
Location: %s

Please investigate:
1. Fetch and analyze the content from the target URL
2. Search Google for each keyword: %s
3. Fetch content from the top 2-3 competitor URLs
4. Compare content quality, structure, and SEO elements

Provide a detailed investigation report.`, req.URL, keywords, req.Location, keywords)
}

func analysisContext(req Request, rank *ranking.Result, investigation string) string {
	rankings := mustJSON(rank.Rankings)
	competitors := mustJSON(rank.Competitors)

	if investigation != "" {
		return fmt.Sprintf(`Investigation Report:
%s

Current Rankings: %s
Top Competitors: %s

Analyze this data and provide key SEO insights.`, investigation, rankings, competitors)
	}

	return fmt.Sprintf(`Target URL: %s
Keywords: %s
Location: %s

Current Rankings: %s
Top Competitors: %s

Analyze this SEO data and provide key insights.`,
		req.URL, strings.Join(req.Keywords, ", "), req.Location, rankings, competitors)
}

func optimizationContext(investigation, analysis string) string {
	if investigation != "" {
		return fmt.Sprintf(`Investigation findings:
%s

Analysis insights:
%s

Provide 5-10 specific, actionable SEO recommendations prioritized by impact.
Format as a numbered list.`, investigation, analysis)
	}

	return fmt.Sprintf(`Based on this analysis:
%s

Provide 5-10 specific, actionable SEO recommendations prioritized by impact.
Format as a numbered list.`, analysis)
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

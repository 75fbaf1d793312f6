// Command rankpilot runs the SEO investigation service: the streaming
// optimize API, the page-fetcher, collaborator management, and the metrics
// endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rankpilot/rankpilot/internal/agent"
	"github.com/rankpilot/rankpilot/internal/config"
	"github.com/rankpilot/rankpilot/internal/fetch"
	"github.com/rankpilot/rankpilot/internal/fingerprint"
	"github.com/rankpilot/rankpilot/internal/metrics"
	"github.com/rankpilot/rankpilot/internal/pipeline"
	"github.com/rankpilot/rankpilot/internal/ranking"
	"github.com/rankpilot/rankpilot/internal/serp"
	"github.com/rankpilot/rankpilot/internal/server"
	"github.com/rankpilot/rankpilot/internal/userstore"
	userpostgres "github.com/rankpilot/rankpilot/internal/userstore/postgres"
	usersqlite "github.com/rankpilot/rankpilot/internal/userstore/sqlite"
	"github.com/rankpilot/rankpilot/pkg/proxy"
	"github.com/rankpilot/rankpilot/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "rankpilot:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var limiter *ratelimit.Limiter
	if cfg.SerpAPI.RPS > 0 {
		limiter = ratelimit.NewLimiter(cfg.SerpAPI.RPS, cfg.SerpAPI.Jitter)
		defer limiter.Stop()
	}

	search, err := serp.NewSerpAPI(serp.SerpAPIConfig{
		APIKey:  cfg.SerpAPI.APIKey,
		BaseURL: cfg.SerpAPI.BaseURL,
		Limiter: limiter,
	}, logger.Named("serp"))
	if err != nil {
		return err
	}

	var proxies *proxy.Pool
	if cfg.Fetch.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			return err
		}
	}

	profile, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return err
	}

	fetcher, err := fetch.NewFetcher(fetch.Config{
		Timeout:       cfg.Fetch.Timeout,
		Fingerprint:   profile,
		RespectRobots: cfg.Fetch.RespectRobots,
		Proxies:       proxies,
	}, logger.Named("fetch"))
	if err != nil {
		return err
	}

	runner, err := agent.NewOpenAIRunner(agent.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}, logger.Named("agent"))
	if err != nil {
		return err
	}

	searchTool := agent.NewSearchTool(search, "United States", "en")
	fetchTool := agent.NewFetchTool(fetcher)
	keywordTool := agent.NewKeywordUsageTool(fetcher)
	sitemapTool := agent.NewSitemapTool(fetcher)

	analyzerRole := agent.NewAnalyzerRole()
	roles := pipeline.Roles{
		Investigator: agent.NewInvestigatorRole(searchTool, fetchTool, keywordTool, sitemapTool),
		Analyzer:     analyzerRole,
		Optimizer:    agent.NewOptimizerRole(analyzerRole),
	}
	pageFetcherRole := agent.NewPageFetcherRole(agent.NewUnboundedFetchTool(fetcher))

	pipe, err := pipeline.New(
		ranking.NewAnalyzer(search, logger.Named("ranking")),
		runner,
		roles,
		pipeline.Config{Investigate: cfg.Pipeline.Investigate},
		logger.Named("pipeline"),
	)
	if err != nil {
		return err
	}

	users, err := openUserStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	srv, err := server.New(server.Deps{
		Pipeline:          pipe,
		Runner:            runner,
		PageFetcher:       pageFetcherRole,
		Users:             users,
		OpenAIConfigured:  cfg.OpenAI.APIKey != "",
		SerpAPIConfigured: cfg.SerpAPI.APIKey != "",
	}, logger.Named("server"))
	if err != nil {
		return err
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.Start(cfg.Metrics.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
	return nil
}

func openUserStore(ctx context.Context, cfg config.DatabaseConfig) (userstore.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return userpostgres.New(ctx, cfg.DSN)
	case "sqlite":
		return usersqlite.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/atlas-research/internal/batch"
	"github.com/sells-group/atlas-research/internal/config"
	"github.com/sells-group/atlas-research/internal/cost"
	"github.com/sells-group/atlas-research/internal/extract"
	"github.com/sells-group/atlas-research/internal/monitoring"
	"github.com/sells-group/atlas-research/internal/normalize"
	"github.com/sells-group/atlas-research/internal/report"
	"github.com/sells-group/atlas-research/internal/research"
	"github.com/sells-group/atlas-research/internal/resilience"
	"github.com/sells-group/atlas-research/internal/scrape"
	"github.com/sells-group/atlas-research/internal/search"
	"github.com/sells-group/atlas-research/internal/store"
	anthropicpkg "github.com/sells-group/atlas-research/pkg/anthropic"
	"github.com/sells-group/atlas-research/pkg/firecrawl"
	"github.com/sells-group/atlas-research/pkg/jina"
	"github.com/sells-group/atlas-research/pkg/perplexity"
)

// appEnv holds the store, the research engine and the batch controller
// needed by the research, batch and serve commands.
type appEnv struct {
	Store      store.Store
	Engine     *research.Engine
	Exporter   *report.Exporter
	Controller *batch.Controller // nil for single-target commands
	Metrics    *monitoring.Collector
	Guard      *resilience.Guard

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates cfg for mode, opens the store and wires the engine.
// The batch controller is built for every mode except "research". Callers
// should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	engine, guard := buildEngine(cfg)
	env := &appEnv{
		Store:    st,
		Engine:   engine,
		Exporter: report.NewExporter(cfg.Report.Dir),
		Metrics:  monitoring.NewCollector(st),
		Guard:    guard,
	}
	if mode == "research" {
		return env, nil
	}

	registry, rdb, err := buildRegistry(ctx, cfg.Upload)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.redis = rdb
	env.Controller = batch.NewController(registry, env.Engine, batch.Options{
		UploadDir:      cfg.Upload.Dir,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Recorder:       st,
		Exporter:       env.Exporter,
	})
	return env, nil
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.Pool.MaxConns,
		MinConns: cfg.Store.Pool.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildEngine wires the provider clients, the shared guard and the phase
// collaborators into a research engine. The guard is returned so its
// breaker states can be reported.
func buildEngine(c *config.Config) (*research.Engine, *resilience.Guard) {
	guard := resilience.NewGuard(retryConfig(c.Research), breakerConfig(c.Research))

	jinaOpts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(c.Jina.Key, jinaOpts...)

	providers := []search.Provider{search.NewJinaProvider(jinaClient)}
	if c.Perplexity.Key != "" {
		pplx := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		providers = append(providers, search.NewPerplexityProvider(pplx))
	} else {
		zap.L().Debug("perplexity key not set, search fallback disabled")
	}
	limiter := rate.NewLimiter(rate.Limit(c.Research.SearchRPS), 1)
	searcher := search.NewSearcher(guard, limiter, c.Research.SearchTimeout(), providers...)

	local := scrape.NewLocalScraper(&http.Client{Timeout: c.Scrape.Timeout()})
	scrapers := []scrape.Scraper{local, scrape.NewJinaAdapter(jinaClient)}
	if c.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(fc))
	}
	filter := scrape.NewURLFilter(c.Scrape.SkipDomains, c.Scrape.ExcludePatterns)
	fetcher := scrape.NewChain(filter, guard, c.Scrape.Timeout(), scrapers...)

	var anthropicOpts []anthropicpkg.ClientOption
	if c.Anthropic.BaseURL != "" {
		anthropicOpts = append(anthropicOpts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
	}
	extractor := extract.New(
		anthropicpkg.NewClient(c.Anthropic.Key, anthropicOpts...),
		guard,
		normalize.New(c.Research.Placeholders),
		extract.Config{
			Model:          c.Anthropic.Model,
			MaxTokens:      c.Anthropic.MaxTokens,
			FieldMaxTokens: c.Anthropic.FieldMaxTokens,
			Timeout:        c.Research.ExtractTimeout(),
		},
	)

	engine := research.New(research.Deps{
		Searcher:  searcher,
		Fetcher:   fetcher,
		Extractor: extractor,
		Logos:     scrape.NewLogoFinder(local, c.Research.LogoFallback),
		Cost:      cost.NewCalculator(pricingRates(c.Pricing)),
		Gate:      semaphore.NewWeighted(int64(max(1, c.Research.MaxActiveTargets))),
	}, research.Config{
		QueryFields:     c.Research.QueryFields,
		MinPages:        c.Research.MinPages,
		MaxCandidates:   c.Research.MaxCandidates,
		MaxFieldRetries: c.Research.MaxFieldRetries,
		RetryPages:      c.Research.RetryPages,
		LogoTimeout:     c.Research.LogoTimeout(),
		Model:           c.Anthropic.Model,
	})
	return engine, guard
}

// buildRegistry returns the upload registry named by cfg. The redis client
// is returned so the caller can close it.
func buildRegistry(ctx context.Context, c config.UploadConfig) (batch.Registry, *redis.Client, error) {
	if c.Registry != "redis" {
		return batch.NewMemoryRegistry(c.TTL()), nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, eris.Wrapf(err, "connect redis %s", c.RedisAddr)
	}
	return batch.NewRedisRegistry(rdb, "", c.TTL()), rdb, nil
}

func retryConfig(c config.ResearchConfig) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if c.RetryAttempts > 0 {
		rc.MaxAttempts = c.RetryAttempts
	}
	return rc
}

func breakerConfig(c config.ResearchConfig) resilience.CircuitBreakerConfig {
	bc := resilience.DefaultCircuitBreakerConfig()
	if c.BreakerThreshold > 0 {
		bc.FailureThreshold = c.BreakerThreshold
	}
	if c.BreakerResetSecs > 0 {
		bc.ResetTimeout = time.Duration(c.BreakerResetSecs) * time.Second
	}
	bc.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return bc
}

// pricingRates overlays configured prices on the defaults. Zero values keep
// the default price.
func pricingRates(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, m := range p.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	if p.Jina.PerMTok > 0 {
		rates.Jina.PerMTok = p.Jina.PerMTok
	}
	if p.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	if p.Firecrawl.PlanMonthly > 0 {
		rates.Firecrawl.PlanMonthly = p.Firecrawl.PlanMonthly
	}
	if p.Firecrawl.CreditsIncluded > 0 {
		rates.Firecrawl.CreditsIncluded = p.Firecrawl.CreditsIncluded
	}
	return rates
}

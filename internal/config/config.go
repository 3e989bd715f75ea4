// Package config loads application settings from config.yaml, an optional
// .env file and RESEARCH_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Upload     UploadConfig     `yaml:"upload" mapstructure:"upload"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig tunes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// JinaConfig holds Jina reader and search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl settings. An empty key disables the
// Firecrawl fallback scraper.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity settings. An empty key disables the
// Perplexity search fallback.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Model          string `yaml:"model" mapstructure:"model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	FieldMaxTokens int64  `yaml:"field_max_tokens" mapstructure:"field_max_tokens"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// ResearchConfig tunes the research engine.
type ResearchConfig struct {
	QueryFields        []string `yaml:"query_fields" mapstructure:"query_fields"`
	MinPages           int      `yaml:"min_pages" mapstructure:"min_pages"`
	MaxCandidates      int      `yaml:"max_candidates" mapstructure:"max_candidates"`
	MaxFieldRetries    int      `yaml:"max_field_retries" mapstructure:"max_field_retries"`
	RetryPages         int      `yaml:"retry_pages" mapstructure:"retry_pages"`
	MaxActiveTargets   int      `yaml:"max_active_targets" mapstructure:"max_active_targets"`
	SearchRPS          float64  `yaml:"search_rps" mapstructure:"search_rps"`
	SearchTimeoutSecs  int      `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	ExtractTimeoutSecs int      `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	LogoTimeoutSecs    int      `yaml:"logo_timeout_secs" mapstructure:"logo_timeout_secs"`
	LogoFallback       string   `yaml:"logo_fallback" mapstructure:"logo_fallback"`
	Placeholders       []string `yaml:"placeholders" mapstructure:"placeholders"`
	RetryAttempts      int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold   int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs   int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// SearchTimeout returns the per-query provider timeout.
func (c ResearchConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSecs) * time.Second
}

// ExtractTimeout returns the per-call extraction timeout.
func (c ResearchConfig) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSecs) * time.Second
}

// LogoTimeout returns the logo lookup budget.
func (c ResearchConfig) LogoTimeout() time.Duration {
	return time.Duration(c.LogoTimeoutSecs) * time.Second
}

// ScrapeConfig configures page fetching.
type ScrapeConfig struct {
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SkipDomains     []string `yaml:"skip_domains" mapstructure:"skip_domains"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

// Timeout returns the per-page fetch timeout.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// UploadConfig configures batch uploads.
type UploadConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	MaxBytes  int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	Registry  string `yaml:"registry" mapstructure:"registry"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	TTLHours  int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns how long an upload stays registered.
func (c UploadConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ReportConfig configures workbook export.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run health alerting. An empty WebhookURL
// disables alert delivery; metrics are still served.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging. File enables a rotating file sink next to
// stderr.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads configuration from .env, config.yaml and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// envOnlyKeys have no default but must still be visible to Unmarshal when
// set through the environment.
var envOnlyKeys = []string{
	"jina.key",
	"firecrawl.key",
	"perplexity.key",
	"anthropic.key",
	"anthropic.base_url",
	"upload.redis_addr",
	"log.file",
	"monitoring.webhook_url",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "atlas.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.field_max_tokens", 1024)
	v.SetDefault("research.min_pages", 3)
	v.SetDefault("research.max_candidates", 10)
	v.SetDefault("research.max_field_retries", 2)
	v.SetDefault("research.retry_pages", 2)
	v.SetDefault("research.max_active_targets", 1)
	v.SetDefault("research.search_rps", 2.0)
	v.SetDefault("research.search_timeout_secs", 20)
	v.SetDefault("research.extract_timeout_secs", 120)
	v.SetDefault("research.logo_timeout_secs", 15)
	v.SetDefault("research.logo_fallback", "https://logo.clearbit.com/%s")
	v.SetDefault("research.retry_attempts", 3)
	v.SetDefault("research.breaker_threshold", 5)
	v.SetDefault("research.breaker_reset_secs", 30)
	v.SetDefault("scrape.timeout_secs", 20)
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("upload.registry", "memory")
	v.SetDefault("upload.ttl_hours", 24)
	v.SetDefault("report.dir", "reports")
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.firecrawl.plan_monthly", 19.00)
	v.SetDefault("pricing.firecrawl.credits_included", 3000)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
}

// Validate checks that the keys required by mode are present and that
// tuning values are in range.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "research", "batch", "serve":
		require(c.Jina.Key != "", "jina.key")
		require(c.Anthropic.Key != "", "anthropic.key")
		require(c.Report.Dir != "", "report.dir")
		if mode != "research" {
			require(c.Upload.Dir != "", "upload.dir")
			switch c.Upload.Registry {
			case "memory":
			case "redis":
				require(c.Upload.RedisAddr != "", "upload.redis_addr")
			default:
				errs = append(errs, fmt.Sprintf("upload.registry %q is not supported", c.Upload.Registry))
			}
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Research.MaxActiveTargets < 1 || c.Research.MaxActiveTargets > 50 {
			errs = append(errs, "research.max_active_targets must be between 1 and 50")
		}
		if c.Research.MaxFieldRetries < 0 {
			errs = append(errs, "research.max_field_retries must be >= 0")
		}
		if c.Research.SearchRPS <= 0 {
			errs = append(errs, "research.search_rps must be > 0")
		}
	case "migrate", "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" {
		require(c.Store.DatabaseURL != "", "store.database_url")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. When cfg.File is set, log
// entries are also written as JSON to a rotating file.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(newRotator(cfg)),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)
	return nil
}

func newRotator(cfg LogConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

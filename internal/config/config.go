package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SourcesConfig configures the upstream data sources and how they are called.
type SourcesConfig struct {
	NPPESBaseURL string `yaml:"nppes_base_url" mapstructure:"nppes_base_url"`
	CMSBaseURL   string `yaml:"cms_base_url" mapstructure:"cms_base_url"`
	CMSDatasetID string `yaml:"cms_dataset_id" mapstructure:"cms_dataset_id"`
	LEIEURL      string `yaml:"leie_url" mapstructure:"leie_url"`
	// LEIEPath, when set, is read instead of downloading LEIEURL.
	LEIEPath string `yaml:"leie_path" mapstructure:"leie_path"`

	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`

	NPPESCacheTTLHours int `yaml:"nppes_cache_ttl_hours" mapstructure:"nppes_cache_ttl_hours"`
	CMSCacheTTLHours   int `yaml:"cms_cache_ttl_hours" mapstructure:"cms_cache_ttl_hours"`
	OIGCacheTTLHours   int `yaml:"oig_cache_ttl_hours" mapstructure:"oig_cache_ttl_hours"`
	LegalCacheTTLHours int `yaml:"legal_cache_ttl_hours" mapstructure:"legal_cache_ttl_hours"`
	MemoSize           int `yaml:"memo_size" mapstructure:"memo_size"`

	BreakerFailures     int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout returns the per-request timeout.
func (s SourcesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// SearchConfig configures the legal web search provider.
type SearchConfig struct {
	Provider          string `yaml:"provider" mapstructure:"provider"`
	JinaKey           string `yaml:"jina_key" mapstructure:"jina_key"`
	JinaBaseURL       string `yaml:"jina_base_url" mapstructure:"jina_base_url"`
	PerplexityKey     string `yaml:"perplexity_key" mapstructure:"perplexity_key"`
	PerplexityBaseURL string `yaml:"perplexity_base_url" mapstructure:"perplexity_base_url"`
	PerplexityModel   string `yaml:"perplexity_model" mapstructure:"perplexity_model"`
	MaxQueries        int    `yaml:"max_queries" mapstructure:"max_queries"`
}

// AnthropicConfig holds Anthropic API settings for report summaries.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ScoringConfig tunes baselines and legal relevance.
type ScoringConfig struct {
	BaselineFile    string   `yaml:"baseline_file" mapstructure:"baseline_file"`
	OfficialDomains []string `yaml:"official_domains" mapstructure:"official_domains"`
	RecencyYears    int      `yaml:"recency_years" mapstructure:"recency_years"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or ./config.yaml when path is
// empty, then applies RISK_* environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "provider-risk.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("sources.nppes_base_url", "https://npiregistry.cms.hhs.gov/api/")
	v.SetDefault("sources.cms_base_url", "https://data.cms.gov/data-api/v1/dataset")
	v.SetDefault("sources.cms_dataset_id", "8889d81e-2ee7-448f-8713-f071038289b5")
	v.SetDefault("sources.leie_url", "https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv")
	v.SetDefault("sources.timeout_secs", 30)
	v.SetDefault("sources.retry_attempts", 3)
	v.SetDefault("sources.rate_limit", 5.0)
	v.SetDefault("sources.rate_burst", 5)
	v.SetDefault("sources.nppes_cache_ttl_hours", 7*24)
	v.SetDefault("sources.cms_cache_ttl_hours", 24)
	v.SetDefault("sources.oig_cache_ttl_hours", 30*24)
	v.SetDefault("sources.legal_cache_ttl_hours", 24)
	v.SetDefault("sources.memo_size", 1024)
	v.SetDefault("sources.breaker_failures", 5)
	v.SetDefault("sources.breaker_cooldown_secs", 60)
	v.SetDefault("search.provider", "jina")
	v.SetDefault("search.jina_base_url", "https://s.jina.ai")
	v.SetDefault("search.perplexity_base_url", "https://api.perplexity.ai")
	v.SetDefault("search.perplexity_model", "sonar-pro")
	v.SetDefault("search.max_queries", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1000)
	v.SetDefault("scoring.recency_years", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present and sane.
// All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "assess", "batch", "history", "cache", "financial":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	switch c.Search.Provider {
	case "", "none", "jina":
	case "perplexity":
		if c.Search.PerplexityKey == "" {
			errs = append(errs, "search.perplexity_key is required for the perplexity provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("search.provider must be jina, perplexity or none, got %q", c.Search.Provider))
	}
	if c.Search.MaxQueries < 1 || c.Search.MaxQueries > 10 {
		errs = append(errs, "search.max_queries must be between 1 and 10")
	}

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		errs = append(errs, "batch.concurrency must be between 1 and 50")
	}
	if c.Scoring.RecencyYears < 1 {
		errs = append(errs, "scoring.recency_years must be >= 1")
	}
	if c.Sources.TimeoutSecs <= 0 {
		errs = append(errs, "sources.timeout_secs must be > 0")
	}
	if c.Sources.RetryAttempts < 1 {
		errs = append(errs, "sources.retry_attempts must be >= 1")
	}
	if c.Sources.BreakerFailures < 1 {
		errs = append(errs, "sources.breaker_failures must be >= 1")
	}
	if c.Sources.LEIEURL == "" && c.Sources.LEIEPath == "" {
		errs = append(errs, "sources.leie_url or sources.leie_path is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
	zap.ReplaceGlobals(logger)

	return nil
}

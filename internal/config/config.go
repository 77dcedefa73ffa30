package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/schoolscrape/internal/portal"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Portal     PortalConfig     `yaml:"portal" mapstructure:"portal"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Listing    ListingConfig    `yaml:"listing" mapstructure:"listing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PortalConfig configures the navigation session against the portal.
type PortalConfig struct {
	EntryURL      string           `yaml:"entry_url" mapstructure:"entry_url"`
	DetailBaseURL string           `yaml:"detail_base_url" mapstructure:"detail_base_url"`
	UserAgent     string           `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout       time.Duration    `yaml:"timeout" mapstructure:"timeout"`
	ReadyTimeout  time.Duration    `yaml:"ready_timeout" mapstructure:"ready_timeout"`
	PollInterval  time.Duration    `yaml:"poll_interval" mapstructure:"poll_interval"`
	RatePerSecond float64          `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int              `yaml:"burst" mapstructure:"burst"`
	Breaker       BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Selectors     portal.Selectors `yaml:"selectors" mapstructure:"selectors"`
}

// BreakerConfig configures the per-host circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// RetryConfig holds the retry bounds of each call site.
type RetryConfig struct {
	Portal    PolicyConfig `yaml:"portal" mapstructure:"portal"`
	Detail    PolicyConfig `yaml:"detail" mapstructure:"detail"`
	NextCheck PolicyConfig `yaml:"next_check" mapstructure:"next_check"`
}

// PolicyConfig is one retry bound.
type PolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `yaml:"delay" mapstructure:"delay"`
}

// Policy converts the bound to a resilience.Policy that logs its retries.
func (p PolicyConfig) Policy(service, operation string) resilience.Policy {
	return resilience.FromPolicyConfig(p.MaxAttempts, p.Delay, service, operation)
}

// ListingConfig configures Phase 1.
type ListingConfig struct {
	MaxPages int `yaml:"max_pages" mapstructure:"max_pages"`
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// BatchConfig configures Phase 2 batching.
type BatchConfig struct {
	Size   int  `yaml:"size" mapstructure:"size"`
	Resume bool `yaml:"resume" mapstructure:"resume"`
}

// OutputConfig configures where result files go.
type OutputConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	XLSX bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at an optional region catalog override file.
type CatalogConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// NotionConfig holds the Notion credentials used to publish Phase 2
// batches. Publishing is off unless both fields are set.
type NotionConfig struct {
	Token         string  `yaml:"token" mapstructure:"token"`
	DatabaseID    string  `yaml:"database_id" mapstructure:"database_id"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// Enabled reports whether Notion publishing is configured.
func (n NotionConfig) Enabled() bool {
	return n.Token != "" && n.DatabaseID != ""
}

// MonitoringConfig configures end-of-run alerting. Alerts are only sent
// when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RegionFailureThreshold float64 `yaml:"region_failure_threshold" mapstructure:"region_failure_threshold"`
	DetailFailureThreshold float64 `yaml:"detail_failure_threshold" mapstructure:"detail_failure_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCHOOLSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	sel := portal.DefaultSelectors()
	v.SetDefault("portal.entry_url", "https://kys.udiseplus.gov.in/")
	v.SetDefault("portal.detail_base_url", "https://kys.udiseplus.gov.in/")
	v.SetDefault("portal.user_agent", "schoolscrape/1.0")
	v.SetDefault("portal.timeout", 30*time.Second)
	v.SetDefault("portal.ready_timeout", 15*time.Second)
	v.SetDefault("portal.poll_interval", 250*time.Millisecond)
	v.SetDefault("portal.rate_per_second", 2.0)
	v.SetDefault("portal.burst", 1)
	v.SetDefault("portal.breaker.failure_threshold", 5)
	v.SetDefault("portal.breaker.cooldown", 30*time.Second)
	v.SetDefault("portal.selectors.advance_search", sel.AdvanceSearch)
	v.SetDefault("portal.selectors.region_select", sel.RegionSelect)
	v.SetDefault("portal.selectors.sub_region_select", sel.SubRegionSelect)
	v.SetDefault("portal.selectors.search_button", sel.SearchButton)
	v.SetDefault("portal.selectors.page_size_select", sel.PageSizeSelect)
	v.SetDefault("portal.selectors.result_item", sel.ResultItem)
	v.SetDefault("portal.selectors.no_results", sel.NoResults)
	v.SetDefault("portal.selectors.next_button", sel.NextButton)
	v.SetDefault("portal.selectors.detail_ready", sel.DetailReady)
	v.SetDefault("retry.portal.max_attempts", 3)
	v.SetDefault("retry.portal.delay", 15*time.Second)
	v.SetDefault("retry.detail.max_attempts", 2)
	v.SetDefault("retry.detail.delay", 3*time.Second)
	v.SetDefault("retry.next_check.max_attempts", 3)
	v.SetDefault("retry.next_check.delay", time.Second)
	v.SetDefault("listing.max_pages", 200)
	v.SetDefault("listing.page_size", 100)
	v.SetDefault("batch.size", 50)
	v.SetDefault("batch.resume", false)
	v.SetDefault("output.dir", "./data")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "schoolscrape.db")
	v.SetDefault("catalog.file", "")
	// Empty defaults let Unmarshal see env-only keys.
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.rate_per_second", 3.0)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.region_failure_threshold", 0.2)
	v.SetDefault("monitoring.detail_failure_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Portal.EntryURL == "" {
		return eris.New("config: portal.entry_url is required")
	}
	if c.Batch.Size <= 0 {
		return eris.Errorf("config: batch.size must be positive, got %d", c.Batch.Size)
	}
	if c.Listing.MaxPages <= 0 {
		return eris.Errorf("config: listing.max_pages must be positive, got %d", c.Listing.MaxPages)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if (c.Notion.Token == "") != (c.Notion.DatabaseID == "") {
		return eris.New("config: notion.token and notion.database_id must be set together")
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

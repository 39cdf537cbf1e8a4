// Package config loads diaperwatch settings from config.yaml and
// DIAPERWATCH_* environment variables, and initializes the global logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ScrapeConfig configures what a scrape job searches for and how often the
// catalog is refreshed.
type ScrapeConfig struct {
	Brands            []string `yaml:"brands" mapstructure:"brands"`
	Sizes             []string `yaml:"sizes" mapstructure:"sizes"`
	Retailers         []string `yaml:"retailers" mapstructure:"retailers"`
	MinProducts       int      `yaml:"min_products" mapstructure:"min_products"`
	DelayMs           int      `yaml:"delay_ms" mapstructure:"delay_ms"`
	StaleAfterHours   int      `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CheckIntervalMins int      `yaml:"check_interval_mins" mapstructure:"check_interval_mins"`
	JobDeadlineSecs   int      `yaml:"job_deadline_secs" mapstructure:"job_deadline_secs"`
	FixturePath       string   `yaml:"fixture_path" mapstructure:"fixture_path"`
}

// SearchParams returns the configured brand x size search.
func (s ScrapeConfig) SearchParams() model.SearchParams {
	return model.SearchParams{Brands: s.Brands, Sizes: s.Sizes, MinProducts: s.MinProducts}
}

// Delay is the base pause between retailer requests.
func (s ScrapeConfig) Delay() time.Duration {
	return time.Duration(s.DelayMs) * time.Millisecond
}

// StaleAfter is the catalog refresh window.
func (s ScrapeConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterHours) * time.Hour
}

// CheckInterval is how often the server checks for staleness.
func (s ScrapeConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMins) * time.Minute
}

// JobDeadline bounds each retailer in a job. Zero means no bound.
func (s ScrapeConfig) JobDeadline() time.Duration {
	return time.Duration(s.JobDeadlineSecs) * time.Second
}

// FetchConfig configures the HTTP fetch layer.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs       int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	JitterMs          int     `yaml:"jitter_ms" mapstructure:"jitter_ms"`
	MinBodyBytes      int     `yaml:"min_body_bytes" mapstructure:"min_body_bytes"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// CircuitConfig configures the per-retailer circuit breaker.
type CircuitConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutMins int  `yaml:"reset_timeout_mins" mapstructure:"reset_timeout_mins"`
}

// BrowserConfig configures the headless browser fallback.
type BrowserConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	BinPath         string `yaml:"bin_path" mapstructure:"bin_path"`
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	ScreenshotDir   string `yaml:"screenshot_dir" mapstructure:"screenshot_dir"`
	ProxyURL        string `yaml:"proxy_url" mapstructure:"proxy_url"`
}

// MonitoringConfig configures scrape health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ConsecutiveFailures  int     `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// Load reads configuration from file and environment. An empty path looks
// for an optional config.yaml in the working directory; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("DIAPERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("scrape.brands", []string{"Pampers", "Huggies", "Kirkland", "Hello Bello", "Honest"})
	v.SetDefault("scrape.sizes", []string{"1", "2", "3", "4", "5", "6", "7"})
	v.SetDefault("scrape.retailers", model.AllRetailers())
	v.SetDefault("scrape.min_products", model.DefaultMinProducts)
	v.SetDefault("scrape.delay_ms", 2000)
	v.SetDefault("scrape.stale_after_hours", 12)
	v.SetDefault("scrape.check_interval_mins", 30)
	v.SetDefault("scrape.job_deadline_secs", 0)
	v.SetDefault("scrape.fixture_path", "")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.base_delay_ms", 1000)
	v.SetDefault("fetch.max_delay_ms", 10000)
	v.SetDefault("fetch.jitter_ms", 500)
	v.SetDefault("fetch.min_body_bytes", 1000)
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("circuit.enabled", true)
	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.reset_timeout_mins", 60)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.page_timeout_secs", 30)
	v.SetDefault("browser.screenshot_dir", "")
	v.SetDefault("browser.proxy_url", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.consecutive_failures", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

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

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "scrape",
// "serve" or "read"; every mode needs a usable store.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "postgresql", "pgx":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	switch mode {
	case "read":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Scrape.CheckIntervalMins <= 0 {
			errs = append(errs, "scrape.check_interval_mins must be > 0")
		}
		errs = append(errs, c.scrapeErrors()...)
	case "scrape":
		errs = append(errs, c.scrapeErrors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) scrapeErrors() []string {
	var errs []string
	if c.Fetch.MaxAttempts <= 0 {
		errs = append(errs, "fetch.max_attempts must be > 0")
	}
	if c.Fetch.TimeoutSecs <= 0 {
		errs = append(errs, "fetch.timeout_secs must be > 0")
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		errs = append(errs, "fetch.requests_per_second must be > 0")
	}
	if c.Scrape.JobDeadlineSecs < 0 {
		errs = append(errs, "scrape.job_deadline_secs must be >= 0")
	}
	if c.Scrape.StaleAfterHours <= 0 {
		errs = append(errs, "scrape.stale_after_hours must be > 0")
	}
	if len(c.Scrape.Brands) == 0 || len(c.Scrape.Sizes) == 0 {
		errs = append(errs, "scrape.brands and scrape.sizes must not be empty")
	}
	for _, r := range c.Scrape.Retailers {
		if !model.IsKnownRetailer(strings.ToLower(r)) {
			errs = append(errs, fmt.Sprintf("unknown retailer %q in scrape.retailers", r))
		}
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	return errs
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

package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultDashboardURL is the item data endpoint of the DOH situation dashboard.
const DefaultDashboardURL = "https://dohph.maps.arcgis.com/sharing/rest/content/items/3dda5e52a7244f12a4fb3d697e32fd39/data"

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// IngestConfig configures a single ingestion pass.
type IngestConfig struct {
	DashboardURL  string `yaml:"dashboard_url" mapstructure:"dashboard_url"`
	FeedsFile     string `yaml:"feeds_file" mapstructure:"feeds_file"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	PageSize      int    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Timezone      string `yaml:"timezone" mapstructure:"timezone"`
	FailOnPartial bool   `yaml:"fail_on_partial" mapstructure:"fail_on_partial"`
}

// FetchConfig configures the HTTP transport used for every upstream call.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// MetricsConfig configures the optional Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
}

// MonitoringConfig configures webhook alerts on failing runs.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackRuns         int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NCOV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("store.database_url", "NCOV_STORE_DATABASE_URL", "DATABASE_URL", "MONGODB_URI"); err != nil {
		return nil, eris.Wrap(err, "config: bind database url")
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("ingest.dashboard_url", DefaultDashboardURL)
	v.SetDefault("ingest.feeds_file", "")
	v.SetDefault("ingest.concurrency", 1)
	v.SetDefault("ingest.page_size", 0)
	v.SetDefault("ingest.max_pages", 50)
	v.SetDefault("ingest.timeout_secs", 600)
	v.SetDefault("ingest.timezone", "Asia/Manila")
	v.SetDefault("ingest.fail_on_partial", false)
	v.SetDefault("fetch.user_agent", "ncov-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "ncov_ingest")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.lookback_runs", 20)
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

	return &cfg, nil
}

// Validate checks the settings an ingestion pass cannot run without.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q (valid: postgres, sqlite)", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" {
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required (NCOV_STORE_DATABASE_URL, DATABASE_URL or MONGODB_URI)")
		}
		// Keyword/value DSNs have no scheme.
		if scheme, _, ok := strings.Cut(c.Store.DatabaseURL, "://"); ok && scheme != "postgres" && scheme != "postgresql" {
			return eris.Errorf("config: store.database_url scheme %q is not supported by the postgres driver (want postgres:// or postgresql://)", scheme)
		}
	}
	if c.Ingest.Concurrency < 1 {
		return eris.Errorf("config: ingest.concurrency must be >= 1, got %d", c.Ingest.Concurrency)
	}
	if c.Ingest.PageSize < 0 {
		return eris.Errorf("config: ingest.page_size must be >= 0, got %d", c.Ingest.PageSize)
	}
	if c.Ingest.DashboardURL == "" {
		return eris.New("config: ingest.dashboard_url is required")
	}
	if c.Monitoring.WebhookURL != "" && c.Monitoring.LookbackRuns < 1 {
		return eris.Errorf("config: monitoring.lookback_runs must be >= 1, got %d", c.Monitoring.LookbackRuns)
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
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
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

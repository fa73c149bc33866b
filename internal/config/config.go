package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Scrape   ScrapeConfig   `yaml:"scrape" mapstructure:"scrape"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Geo      GeoConfig      `yaml:"geo" mapstructure:"geo"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StorageConfig configures where fetched and extracted files land.
type StorageConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	LocalRoot string `yaml:"local_root" mapstructure:"local_root"`
}

// ScrapeConfig configures bulletin page discovery.
type ScrapeConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	CurrentMonthPath  string `yaml:"current_month_path" mapstructure:"current_month_path"`
	HistoricalPath    string `yaml:"historical_path" mapstructure:"historical_path"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// FetchConfig configures file downloads.
type FetchConfig struct {
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseMS  int    `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	TempDir        string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// PipelineConfig configures processing behavior.
type PipelineConfig struct {
	Threads    int  `yaml:"threads" mapstructure:"threads"`
	Sequential bool `yaml:"sequential" mapstructure:"sequential"`
	DryRun     bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// GeoConfig configures the DIVIPOLA reference dataset.
type GeoConfig struct {
	DatasetPath string `yaml:"dataset_path" mapstructure:"dataset_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields required for the given run mode.
// Modes: "scrape" (discovery + registration), "process" (parsing runs),
// "migrate" (schema management).
func (c *Config) Validate(mode string) error {
	var missing []string

	checkDB := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "scrape":
		checkDB()
		if c.Scrape.BaseURL == "" {
			missing = append(missing, "scrape.base_url is required")
		}
		if c.Storage.Backend == "s3" && c.Storage.Bucket == "" {
			missing = append(missing, "storage.bucket is required for the s3 backend")
		}
	case "process":
		checkDB()
		if c.Storage.Backend == "s3" && c.Storage.Bucket == "" {
			missing = append(missing, "storage.bucket is required for the s3 backend")
		}
	case "migrate":
		checkDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.Threads < 1 || c.Pipeline.Threads > 64 {
		missing = append(missing, "pipeline.threads must be between 1 and 64")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIPSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.local_root", "data")
	v.SetDefault("scrape.base_url", "https://www.dane.gov.co")
	v.SetDefault("scrape.current_month_path", "/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/mayoristas-boletin-diario")
	v.SetDefault("scrape.historical_path", "/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/mayoristas-boletin-diario/mayoristas-boletin-diario-historicos")
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (X11; Linux x86_64) sipsa-cli/1.0")
	v.SetDefault("scrape.requests_per_second", 2.0)
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_base_ms", 500)
	v.SetDefault("fetch.temp_dir", "/tmp/sipsa")
	v.SetDefault("pipeline.threads", 8)
	v.SetDefault("geo.dataset_path", "data/divipola.tsv")
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

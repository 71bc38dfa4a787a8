package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input feedback files.
type DataConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	ReviewsCSV string `yaml:"reviews_csv" mapstructure:"reviews_csv"`
	EmailsCSV  string `yaml:"emails_csv" mapstructure:"emails_csv"`
}

// StoreConfig configures the result store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "csv" or "postgres"
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// PipelineConfig configures triage processing behavior.
type PipelineConfig struct {
	MaxRetries     int `yaml:"max_retries" mapstructure:"max_retries"`
	Workers        int `yaml:"workers" mapstructure:"workers"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	FlushEvery     int `yaml:"flush_every" mapstructure:"flush_every"`
}

// RetryBackoffDuration converts the configured backoff to a duration.
// Zero means immediate retry.
func (p PipelineConfig) RetryBackoffDuration() time.Duration {
	return time.Duration(p.RetryBackoffMS) * time.Millisecond
}

// RulesConfig locates the priority rules file.
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// JobsConfig configures the job tracking database.
type JobsConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	RetentionHours  int    `yaml:"retention_hours" mapstructure:"retention_hours"`
	CleanupInterval int    `yaml:"cleanup_interval_mins" mapstructure:"cleanup_interval_mins"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background alerting. Alerts are disabled
// unless a webhook URL is set.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.reviews_csv", "app_store_reviews.csv")
	v.SetDefault("data.emails_csv", "support_emails.csv")
	v.SetDefault("store.driver", "csv")
	v.SetDefault("store.output_dir", "output")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_second", 5)
	v.SetDefault("anthropic.burst", 5)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.retry_backoff_ms", 0)
	v.SetDefault("pipeline.flush_every", 5)
	v.SetDefault("rules.path", "priority_rules.yaml")
	v.SetDefault("jobs.path", "jobs.db")
	v.SetDefault("jobs.retention_hours", 24)
	v.SetDefault("jobs.cleanup_interval_mins", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
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

// Validate checks that required settings for the given mode are present.
// Modes: "run" (triage processing), "serve" (REST API).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "run":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "csv":
		if c.Store.OutputDir == "" {
			problems = append(problems, "store.output_dir is required for the csv driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be csv or postgres")
	}

	if c.Pipeline.MaxRetries < 1 {
		problems = append(problems, "pipeline.max_retries must be >= 1")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 50 {
		problems = append(problems, "pipeline.workers must be between 1 and 50")
	}
	if c.Pipeline.FlushEvery < 1 {
		problems = append(problems, "pipeline.flush_every must be >= 1")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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

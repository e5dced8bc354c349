// Package config provides configuration management for the application. It
// loads values from a YAML file plus environment variable overrides, with a
// .env file picked up when present.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/quarryhq/quarry/internal/database"
	"github.com/quarryhq/quarry/internal/logger"
)

// Crawler defaults.
const (
	DefaultWorkers           = 4
	DefaultUserAgent         = "quarry/1.0"
	DefaultMaxRetries        = 3
	DefaultBaseBackoff       = 30 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRobotsTTL         = 24 * time.Hour
	DefaultCrawlDelay        = 1.0
	DefaultDispatchBatchSize = 50
)

// Config represents the application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// CrawlerConfig holds crawl engine settings.
type CrawlerConfig struct {
	// Workers is the per-session worker pool size.
	Workers int `mapstructure:"workers"`
	// UserAgent is sent on every request and matched against robots rules.
	UserAgent string `mapstructure:"user_agent"`
	// MaxRetries bounds transient-failure retries per queue entry.
	MaxRetries int `mapstructure:"max_retries"`
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	// RequestTimeout bounds a single page fetch.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RobotsTTL is how long a fetched robots.txt stays fresh.
	RobotsTTL time.Duration `mapstructure:"robots_ttl"`
	// CrawlDelay is the per-host politeness delay in seconds, used when
	// robots.txt does not specify one.
	CrawlDelay float64 `mapstructure:"crawl_delay"`
	// DispatchBatchSize is how many queue candidates are examined per
	// dequeue attempt.
	DispatchBatchSize int `mapstructure:"dispatch_batch_size"`
	// RecrawlCompleted admits URLs that already have a crawled page row.
	RecrawlCompleted bool `mapstructure:"recrawl_completed"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConnection converts the database section to connection settings.
func (c *Config) DatabaseConnection() database.Config {
	return database.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		DBName:   c.Database.Name,
		SSLMode:  c.Database.SSLMode,
	}
}

// LoggerConfig converts the logging section to logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Logging.Level,
		Encoding:    c.Logging.Encoding,
		Development: c.Logging.Development,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler workers must be positive, got %d", c.Crawler.Workers)
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler user agent is required")
	}
	if c.Crawler.CrawlDelay < 0 {
		return fmt.Errorf("crawl delay must not be negative, got %g", c.Crawler.CrawlDelay)
	}
	return nil
}

// Load reads configuration from the optional YAML file at path, layering
// environment variables (QUARRY_ prefixed, e.g. QUARRY_DATABASE_PASSWORD)
// over file values and defaults. A .env file in the working directory is
// loaded first when present.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUARRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies default values to the config.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "quarry")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("crawler.workers", DefaultWorkers)
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.max_retries", DefaultMaxRetries)
	v.SetDefault("crawler.base_backoff", DefaultBaseBackoff)
	v.SetDefault("crawler.request_timeout", DefaultRequestTimeout)
	v.SetDefault("crawler.robots_ttl", DefaultRobotsTTL)
	v.SetDefault("crawler.crawl_delay", DefaultCrawlDelay)
	v.SetDefault("crawler.dispatch_batch_size", DefaultDispatchBatchSize)
	v.SetDefault("crawler.recrawl_completed", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
}

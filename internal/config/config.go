// Package config handles configuration loading for the SEER pipeline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Crawler    CrawlerConfig    `yaml:"crawler"`
	Queue      QueueConfig      `yaml:"queue"`
	Workers    WorkerConfig     `yaml:"workers"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Notify     NotifyConfig     `yaml:"notify"`
	Archive    ArchiveConfig    `yaml:"archive"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds relational datastore settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CrawlerConfig holds crawl-job limits and fetch-collaborator settings.
type CrawlerConfig struct {
	FetcherURL      string        `yaml:"fetcher_url"`
	FetcherAPIKey   string        `yaml:"fetcher_api_key"`
	MaxDepth        int           `yaml:"max_depth"`
	MaxPagesPerJob  int           `yaml:"max_pages_per_job"`
	CrawlDelay      time.Duration `yaml:"crawl_delay"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	FetchRetries    int           `yaml:"fetch_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	UserAgent       string        `yaml:"user_agent"`
}

// QueueConfig holds fetch-unit queue settings.
type QueueConfig struct {
	Size int `yaml:"size"`
}

// WorkerConfig holds pipeline worker-pool settings.
type WorkerConfig struct {
	Count        int           `yaml:"count"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// ExtractionConfig holds extraction-collaborator settings.
type ExtractionConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MinTextSize int           `yaml:"min_text_size"`
}

// DedupConfig holds content-hash dedup window settings.
type DedupConfig struct {
	Window    time.Duration `yaml:"window"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	RedisPass string        `yaml:"redis_pass"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	Timeout      time.Duration `yaml:"timeout"`
	KafkaBrokers []string      `yaml:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic"`
}

// ArchiveConfig holds raw page archival settings.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	BurstSize     int           `yaml:"burst_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             "host=localhost user=seer password=seer dbname=seer port=5432 sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Crawler: CrawlerConfig{
			FetcherURL:     "http://localhost:8888",
			MaxDepth:       2,
			MaxPagesPerJob: 10,
			CrawlDelay:     time.Second,
			FetchTimeout:   30 * time.Second,
			FetchRetries:   3,
			RetryBackoff:   500 * time.Millisecond,
			JobTimeout:     10 * time.Minute,
			UserAgent:      "SEER-Crawl-Bot/1.0",
		},
		Queue: QueueConfig{
			Size: 10000,
		},
		Workers: WorkerConfig{
			Count:        4,
			PollInterval: 100 * time.Millisecond,
			ShutdownWait: 30 * time.Second,
		},
		Extraction: ExtractionConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Timeout:     60 * time.Second,
			MinTextSize: 100,
		},
		Dedup: DedupConfig{
			Window: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Timeout:    10 * time.Second,
			KafkaTopic: "seer.alerts",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Region:  "us-east-1",
			Bucket:  "seer-page-archive",
			Prefix:  "pages/",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RequestsPerIP: 1000,
			WindowSize:    time.Minute,
			BurstSize:     50,
			CleanupPeriod: 5 * time.Minute,
			ExemptPaths:   []string{"/health", "/metrics"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SEER_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SEER_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("SEER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if dsn := os.Getenv("SEER_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}

	if url := os.Getenv("SEER_FETCHER_URL"); url != "" {
		c.Crawler.FetcherURL = url
	}

	if key := os.Getenv("SEER_FETCHER_API_KEY"); key != "" {
		c.Crawler.FetcherAPIKey = key
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Extraction.APIKey = key
	}

	if model := os.Getenv("SEER_EXTRACTION_MODEL"); model != "" {
		c.Extraction.Model = model
	}

	if addr := os.Getenv("SEER_REDIS_ADDR"); addr != "" {
		c.Dedup.RedisAddr = addr
	}

	if brokers := os.Getenv("SEER_KAFKA_BROKERS"); brokers != "" {
		c.Notify.KafkaBrokers = splitAndTrim(brokers, ",")
	}

	if url := os.Getenv("SEER_NOTIFY_WEBHOOK_URL"); url != "" {
		c.Notify.WebhookURL = url
	}

	if enabled := os.Getenv("SEER_ARCHIVE_ENABLED"); enabled == "true" {
		c.Archive.Enabled = true
	}

	if enabled := os.Getenv("SEER_RATELIMIT_ENABLED"); enabled == "false" {
		c.RateLimit.Enabled = false
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue size must be positive")
	}

	if c.Workers.Count <= 0 {
		return fmt.Errorf("worker count must be positive")
	}

	if c.Crawler.MaxPagesPerJob <= 0 {
		return fmt.Errorf("max_pages_per_job must be positive")
	}

	if c.Crawler.FetchRetries < 0 {
		return fmt.Errorf("fetch_retries must not be negative")
	}

	if c.Extraction.Timeout <= 0 {
		return fmt.Errorf("extraction timeout must be positive")
	}

	return nil
}

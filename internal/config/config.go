// Package config loads and validates extractor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/product-extractor/internal/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. EXTRACTOR_DB_DSN.
const EnvPrefix = "EXTRACTOR"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Queue    QueueConfig    `mapstructure:"queue"`
	DB       DBConfig       `mapstructure:"db"`
	Output   OutputConfig   `mapstructure:"output"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig bounds concurrency and extraction.
type CrawlerConfig struct {
	GlobalConcurrency  int     `mapstructure:"global_concurrency"`
	PerDomainLimit     int     `mapstructure:"per_domain_limit"`
	HeavyConcurrency   int     `mapstructure:"heavy_concurrency"`
	UserAgent          string  `mapstructure:"user_agent"`
	MaxProductsPerPage int     `mapstructure:"max_products_per_page"`
	ExtractProducts    bool    `mapstructure:"extract_products"`
	DomainRPS          float64 `mapstructure:"domain_rps"`
}

// HTTPConfig configures static fetches and API probes.
type HTTPConfig struct {
	TimeoutSeconds    int `mapstructure:"timeout_seconds"`
	APITimeoutSeconds int `mapstructure:"api_timeout_seconds"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	BackoffInitialMs  int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the heavy render tier.
type HeadlessConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	PageTimeoutMs   int    `mapstructure:"page_timeout_ms"`
	PostLoadDelayMs int    `mapstructure:"post_load_delay_ms"`
	ScrollDelayMs   int    `mapstructure:"scroll_delay_ms"`
	MinHTMLBytes    int    `mapstructure:"min_html_bytes"`
	WaitSelector    string `mapstructure:"wait_selector"`
}

// QueueConfig controls batch claiming.
type QueueConfig struct {
	BatchSize         int    `mapstructure:"batch_size"`
	MaxBatches        int    `mapstructure:"max_batches"`
	StaleAfterMinutes int    `mapstructure:"stale_after_minutes"`
	BatchPauseMs      int    `mapstructure:"batch_pause_ms"`
	WorkerID          string `mapstructure:"worker_id"`
}

// DBConfig controls access to the task and product tables.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	MaxConns      int32  `mapstructure:"max_conns"`
	MinConns      int32  `mapstructure:"min_conns"`
	TasksTable    string `mapstructure:"tasks_table"`
	ProductsTable string `mapstructure:"products_table"`
}

// OutputConfig selects where artifacts and the run manifest go.
type OutputConfig struct {
	SaveFiles    bool   `mapstructure:"save_files"`
	Dir          string `mapstructure:"dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	GCSPrefix    string `mapstructure:"gcs_prefix"`
	ManifestName string `mapstructure:"manifest_name"`
}

// RedisConfig enables cross-worker product dedup when Addr is set.
type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	SeenTTLMinutes int    `mapstructure:"seen_ttl_minutes"`
}

// Notifier kinds.
const (
	NotifyNone   = "none"
	NotifyLog    = "log"
	NotifyPubSub = "pubsub"
	NotifyAMQP   = "amqp"
)

// NotifyConfig selects the outcome notification sink.
type NotifyConfig struct {
	Kind       string `mapstructure:"kind"`
	ProjectID  string `mapstructure:"project_id"`
	Topic      string `mapstructure:"topic"`
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// AdminConfig controls the optional admin HTTP server.
type AdminConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.global_concurrency", 16)
	v.SetDefault("crawler.per_domain_limit", 3)
	v.SetDefault("crawler.heavy_concurrency", 4)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; product-extractor/1.0)")
	v.SetDefault("crawler.max_products_per_page", 50)
	v.SetDefault("crawler.extract_products", true)
	v.SetDefault("crawler.domain_rps", 0)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.api_timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.page_timeout_ms", 45000)
	v.SetDefault("headless.post_load_delay_ms", 2000)
	v.SetDefault("headless.scroll_delay_ms", 500)
	v.SetDefault("headless.min_html_bytes", 1500)
	v.SetDefault("headless.wait_selector", pipeline.DefaultWaitSelector)
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.max_batches", 0)
	v.SetDefault("queue.stale_after_minutes", 30)
	v.SetDefault("queue.batch_pause_ms", 1000)
	v.SetDefault("queue.worker_id", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.tasks_table", "product_page_urls")
	v.SetDefault("db.products_table", "r_product_data")
	v.SetDefault("output.save_files", false)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "")
	v.SetDefault("output.manifest_name", "manifest.jsonl")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.seen_ttl_minutes", 1440)
	v.SetDefault("notify.kind", NotifyNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.amqp_url", "")
	v.SetDefault("notify.exchange", "")
	v.SetDefault("notify.routing_key", "")
	v.SetDefault("admin.port", 0)
	v.SetDefault("admin.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.GlobalConcurrency <= 0 {
		return fmt.Errorf("crawler.global_concurrency must be > 0")
	}
	if c.Crawler.PerDomainLimit <= 0 {
		return fmt.Errorf("crawler.per_domain_limit must be > 0")
	}
	if c.Crawler.HeavyConcurrency <= 0 {
		return fmt.Errorf("crawler.heavy_concurrency must be > 0")
	}
	if c.Crawler.MaxProductsPerPage <= 0 {
		return fmt.Errorf("crawler.max_products_per_page must be > 0")
	}
	if c.Crawler.DomainRPS < 0 {
		return fmt.Errorf("crawler.domain_rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.APITimeoutSeconds <= 0 {
		return fmt.Errorf("http.api_timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.Headless.Enabled && c.Headless.PageTimeoutMs <= 0 {
		return fmt.Errorf("headless.page_timeout_ms must be > 0 when headless is enabled")
	}
	if c.Headless.MinHTMLBytes < 0 {
		return fmt.Errorf("headless.min_html_bytes must be >= 0")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be > 0")
	}
	if c.Queue.MaxBatches < 0 {
		return fmt.Errorf("queue.max_batches must be >= 0")
	}
	if c.Queue.StaleAfterMinutes <= 0 {
		return fmt.Errorf("queue.stale_after_minutes must be > 0")
	}
	if c.Output.SaveFiles && c.Output.Dir == "" && c.Output.GCSBucket == "" {
		return fmt.Errorf("output.dir or output.gcs_bucket must be set when output.save_files is enabled")
	}
	switch c.Notify.Kind {
	case "", NotifyNone, NotifyLog:
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set for pubsub")
		}
	case NotifyAMQP:
		if c.Notify.AMQPURL == "" {
			return fmt.Errorf("notify.amqp_url must be set for amqp")
		}
	default:
		return fmt.Errorf("notify.kind %q is not supported", c.Notify.Kind)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be between 0 and 65535")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

// FetchTimeout is the static fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// APITimeout is the per-endpoint API probe budget.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.HTTP.APITimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// StaleAfter is the claim recycling window.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Queue.StaleAfterMinutes) * time.Minute
}

// BatchPause separates consecutive batches.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Queue.BatchPauseMs) * time.Millisecond
}

// SeenTTL is how long a product key stays in the seen-set.
func (c Config) SeenTTL() time.Duration {
	return time.Duration(c.Redis.SeenTTLMinutes) * time.Minute
}

// Pipeline maps the crawler and headless sections onto the controller's
// configuration.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		MaxProducts:     c.Crawler.MaxProductsPerPage,
		ExtractProducts: c.Crawler.ExtractProducts,
		MinHTMLBytes:    c.Headless.MinHTMLBytes,
		WaitSelector:    c.Headless.WaitSelector,
		PageTimeout:     time.Duration(c.Headless.PageTimeoutMs) * time.Millisecond,
		PostLoadDelay:   time.Duration(c.Headless.PostLoadDelayMs) * time.Millisecond,
		ScrollDelay:     time.Duration(c.Headless.ScrollDelayMs) * time.Millisecond,
	}
}

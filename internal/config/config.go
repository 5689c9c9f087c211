// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/verdict-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/verdict-crawler/internal/logging"
	"github.com/JakeFAU/verdict-crawler/internal/policy/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g. VERDICT_CRAWL_CONCURRENCY.
const EnvPrefix = "VERDICT"

// Storage providers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification and mirror providers.
const (
	ProviderNone   = "none"
	ProviderKafka  = "kafka"
	ProviderPubSub = "pubsub"
	ProviderGCS    = "gcs"
	ProviderLocal  = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Source     SourceConfig     `mapstructure:"source"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    logging.Config   `mapstructure:"logging"`
}

// CrawlConfig governs the worker pool.
type CrawlConfig struct {
	Concurrency  int             `mapstructure:"concurrency"`
	Timeout      time.Duration   `mapstructure:"timeout"`
	StoreTimeout time.Duration   `mapstructure:"store_timeout"`
	Filters      crawler.Filters `mapstructure:"filters"`
}

// SourceConfig describes the verdict listing site.
type SourceConfig struct {
	ListingURL    string                 `mapstructure:"listing_url"`
	UserAgent     string                 `mapstructure:"user_agent"`
	RespectRobots bool                   `mapstructure:"respect_robots"`
	DateLayout    string                 `mapstructure:"date_layout"`
	Selectors     collyfetcher.Selectors `mapstructure:"selectors"`
	RateLimit     ratelimit.Config       `mapstructure:"rate_limit"`
}

// CheckpointConfig sets where fault checkpoints go.
type CheckpointConfig struct {
	Dir    string       `mapstructure:"dir"`
	Mirror MirrorConfig `mapstructure:"mirror"`
}

// MirrorConfig selects an optional second copy of each checkpoint.
type MirrorConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Dir      string `mapstructure:"dir"`
}

// StorageConfig selects the verdict store.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	RunsTable       string        `mapstructure:"runs_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// NotifyConfig selects where fault events are published after a run.
type NotifyConfig struct {
	Provider string       `mapstructure:"provider"`
	Kafka    KafkaConfig  `mapstructure:"kafka"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// KafkaConfig addresses the fault topic on a Kafka cluster.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PubSubConfig addresses the fault topic on Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the Prometheus endpoint; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk and environment. v may carry bound CLI
// flags; nil starts from a fresh instance.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
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
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("crawl.timeout", 30*time.Second)
	v.SetDefault("crawl.store_timeout", 30*time.Second)
	v.SetDefault("crawl.filters.skip_confidential", false)
	v.SetDefault("crawl.filters.include_technical", false)
	v.SetDefault("crawl.filters.full_text", false)
	v.SetDefault("source.listing_url", "")
	v.SetDefault("source.user_agent", "verdict-crawler/0.1")
	v.SetDefault("source.respect_robots", true)
	v.SetDefault("source.date_layout", crawler.DateLayout)
	v.SetDefault("source.rate_limit.requests_per_second", 2.0)
	v.SetDefault("source.rate_limit.burst", 2)
	v.SetDefault("checkpoint.dir", "checkpoints")
	v.SetDefault("checkpoint.mirror.provider", ProviderNone)
	v.SetDefault("storage.provider", StoragePostgres)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "verdicts")
	v.SetDefault("storage.postgres.runs_table", "crawl_runs")
	v.SetDefault("storage.postgres.ensure_schema", true)
	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("notify.kafka.topic", "")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. Concurrency is
// clamped later by the dispatcher, so only non-positive values are rejected.
func (c Config) Validate() error {
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.Timeout <= 0 {
		return fmt.Errorf("crawl.timeout must be > 0")
	}
	if !strings.Contains(c.Source.ListingURL, collyfetcher.DatePlaceholder) {
		return fmt.Errorf("source.listing_url must contain %s", collyfetcher.DatePlaceholder)
	}
	if strings.TrimSpace(c.Checkpoint.Dir) == "" {
		return fmt.Errorf("checkpoint.dir is required")
	}
	switch c.Checkpoint.Mirror.Provider {
	case "", ProviderNone:
	case ProviderGCS:
		if c.Checkpoint.Mirror.Bucket == "" {
			return fmt.Errorf("checkpoint.mirror.bucket is required for the gcs mirror")
		}
	case ProviderLocal:
		if c.Checkpoint.Mirror.Dir == "" {
			return fmt.Errorf("checkpoint.mirror.dir is required for the local mirror")
		}
	default:
		return fmt.Errorf("unknown checkpoint.mirror.provider %q", c.Checkpoint.Mirror.Provider)
	}
	switch c.Storage.Provider {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Notify.Provider {
	case "", ProviderNone:
	case ProviderKafka:
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka.brokers and notify.kafka.topic are required")
		}
	case ProviderPubSub:
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.Topic == "" {
			return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic are required")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

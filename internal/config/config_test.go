package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/verdict-crawler/internal/policy/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
crawl:
  concurrency: 8
  timeout: 12s
  filters:
    skip_confidential: true
    full_text: true
source:
  listing_url: https://courts.example/verdicts?date={date}
  respect_robots: false
  selectors:
    item: tr.row
checkpoint:
  dir: /var/lib/verdicts
  mirror:
    provider: gcs
    bucket: verdict-checkpoints
    prefix: prod
storage:
  provider: postgres
  postgres:
    dsn: postgres://crawler@localhost/verdicts
    max_conns: 12
notify:
  provider: kafka
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    topic: verdict-faults
metrics:
  addr: ":9102"
logging:
  development: true
  level: debug
`)
	cfg, err := Load(nil, path)
	require.NoError(t, err)

	require.Equal(t, 8, cfg.Crawl.Concurrency)
	require.Equal(t, 12*time.Second, cfg.Crawl.Timeout)
	require.Equal(t, 30*time.Second, cfg.Crawl.StoreTimeout)
	require.True(t, cfg.Crawl.Filters.SkipConfidential)
	require.False(t, cfg.Crawl.Filters.IncludeTechnical)
	require.True(t, cfg.Crawl.Filters.FullText)
	require.False(t, cfg.Source.RespectRobots)
	require.Equal(t, "tr.row", cfg.Source.Selectors.Item)
	require.Equal(t, "/var/lib/verdicts", cfg.Checkpoint.Dir)
	require.Equal(t, "verdict-checkpoints", cfg.Checkpoint.Mirror.Bucket)
	require.Equal(t, int32(12), cfg.Storage.Postgres.MaxConns)
	require.Equal(t, "verdicts", cfg.Storage.Postgres.Table)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.Kafka.Brokers)
	require.Equal(t, ":9102", cfg.Metrics.Addr)
	require.True(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("source.listing_url", "https://courts.example/{date}")
	v.Set("storage.provider", StorageMemory)
	cfg, err := Load(v, "")
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Crawl.Concurrency)
	require.Equal(t, 30*time.Second, cfg.Crawl.Timeout)
	require.Equal(t, "checkpoints", cfg.Checkpoint.Dir)
	require.Equal(t, ProviderNone, cfg.Notify.Provider)
	require.Equal(t, ProviderNone, cfg.Checkpoint.Mirror.Provider)
	require.True(t, cfg.Source.RespectRobots)
	require.Equal(t, ratelimit.Config{RequestsPerSecond: 2, Burst: 2}, cfg.Source.RateLimit)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("VERDICT_CRAWL_CONCURRENCY", "3")
	t.Setenv("VERDICT_SOURCE_LISTING_URL", "https://courts.example/{date}")
	t.Setenv("VERDICT_STORAGE_PROVIDER", "memory")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Crawl.Concurrency)
	require.Equal(t, StorageMemory, cfg.Storage.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Crawl:      CrawlConfig{Concurrency: 5, Timeout: time.Second},
			Source:     SourceConfig{ListingURL: "https://courts.example/{date}"},
			Checkpoint: CheckpointConfig{Dir: "checkpoints"},
			Storage:    StorageConfig{Provider: StorageMemory},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero concurrency", mutate: func(c *Config) { c.Crawl.Concurrency = 0 }},
		{name: "zero timeout", mutate: func(c *Config) { c.Crawl.Timeout = 0 }},
		{name: "listing without placeholder", mutate: func(c *Config) { c.Source.ListingURL = "https://courts.example" }},
		{name: "empty checkpoint dir", mutate: func(c *Config) { c.Checkpoint.Dir = " " }},
		{name: "gcs mirror without bucket", mutate: func(c *Config) { c.Checkpoint.Mirror.Provider = ProviderGCS }},
		{name: "local mirror without dir", mutate: func(c *Config) { c.Checkpoint.Mirror.Provider = ProviderLocal }},
		{name: "unknown mirror", mutate: func(c *Config) { c.Checkpoint.Mirror.Provider = "s3" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Provider = StoragePostgres }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Provider = "sqlite" }},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Notify.Provider = ProviderKafka
			c.Notify.Kafka.Brokers = []string{"k:9092"}
		}},
		{name: "pubsub without project", mutate: func(c *Config) {
			c.Notify.Provider = ProviderPubSub
			c.Notify.PubSub.Topic = "faults"
		}},
		{name: "unknown notify", mutate: func(c *Config) { c.Notify.Provider = "smtp" }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

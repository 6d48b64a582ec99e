package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 300*time.Second, cfg.Interval())
	require.Equal(t, 30, cfg.Scheduler.WindowDays)
	require.Equal(t, "Asia/Seoul", cfg.Scheduler.Timezone)
	require.Equal(t, 2592000*time.Second, cfg.DedupTTL())
	require.Equal(t, 100, cfg.Source.PerPage)
	require.Equal(t, "cheongyak.new_notice", cfg.Channel.Topic)
	require.Equal(t, "cheongyak-consumer-group", cfg.Channel.Subscription)
	require.Equal(t, 10, cfg.Channel.ConnectRetries)
	require.Equal(t, "applyhome_data", cfg.DocStore.NoticeCollection)
	require.Equal(t, "applyhome_json", cfg.DocStore.EnrichmentCollection)
	require.Equal(t, 3, cfg.Geocode.MaxAttempts)
	require.Equal(t, 500, cfg.Geocode.BackoffMs)
	require.Equal(t, 200, cfg.Geocode.CandidateGapMs)
	require.Equal(t, "getAtchmnfl.do", cfg.Detail.AttachmentMarker)
	require.Equal(t, 60, cfg.Detail.PDFTimeoutSeconds)
	require.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	require.Equal(t, "ap-northeast-2", cfg.Archive.Region)
}

func TestLoadWithFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noticewatch.yaml")
	configYAML := `
scheduler:
  interval_seconds: 60
  timezone: UTC
source:
  service_key: from-file
channel:
  backend: memory
docstore:
  backend: memory
consumer:
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	t.Setenv("NOTICEWATCH_SOURCE_SERVICE_KEY", "from-env")
	t.Setenv("NOTICEWATCH_REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, time.Minute, cfg.Interval())
	require.Equal(t, "from-env", cfg.Source.ServiceKey)
	require.Equal(t, "redis:6380", cfg.Redis.Addr)
	require.Equal(t, "memory", cfg.Channel.Backend)
	require.Equal(t, 4, cfg.Consumer.Workers)
	require.Equal(t, time.UTC, cfg.Location())
	require.NoError(t, cfg.ValidatePublisher())
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consumer:\n  workers: 7\n"), 0o600))
	t.Setenv("NOTICEWATCH_CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Consumer.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Scheduler: SchedulerConfig{IntervalSeconds: 300, WindowDays: 30, Timezone: "UTC"},
		Source:    SourceConfig{ServiceKey: "k", PerPage: 100, TimeoutSeconds: 15},
		Redis:     RedisConfig{Backend: "redis", Addr: "localhost:6379", TTLSeconds: 10},
		Channel:   ChannelConfig{Backend: "pubsub", ProjectID: "p", Topic: "t", Subscription: "s"},
		Consumer:  ConsumerConfig{Workers: 1, QueueDepth: 1},
		DocStore:  DocStoreConfig{Backend: "mongo", URI: "mongodb://x"},
		Geocode:   GeocodeConfig{MaxAttempts: 3},
		Detail:    DetailConfig{PageTimeoutSeconds: 15, PDFTimeoutSeconds: 60},
		Archive:   ArchiveConfig{Backend: "s3", Bucket: "b"},
		Model:     ModelConfig{APIKey: "m"},
	}
	require.NoError(t, base.ValidatePublisher())
	require.NoError(t, base.ValidateConsumer())

	tests := []struct {
		name     string
		mutate   func(*Config)
		consumer bool
		want     string
	}{
		{name: "interval", mutate: func(c *Config) { c.Scheduler.IntervalSeconds = 0 }, want: "scheduler.interval_seconds"},
		{name: "timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Nowhere/Void" }, want: "scheduler.timezone"},
		{name: "service key", mutate: func(c *Config) { c.Source.ServiceKey = " " }, want: "source.service_key"},
		{name: "ttl", mutate: func(c *Config) { c.Redis.TTLSeconds = 0 }, want: "redis.ttl_seconds"},
		{name: "channel backend", mutate: func(c *Config) { c.Channel.Backend = "kafka" }, want: "channel.backend"},
		{name: "project", mutate: func(c *Config) { c.Channel.ProjectID = "" }, want: "channel.project_id"},
		{name: "docstore", mutate: func(c *Config) { c.DocStore.URI = "" }, want: "docstore.uri"},
		{name: "workers", mutate: func(c *Config) { c.Consumer.Workers = 0 }, consumer: true, want: "consumer.workers"},
		{name: "bucket", mutate: func(c *Config) { c.Archive.Bucket = "" }, consumer: true, want: "archive.bucket"},
		{name: "archive backend", mutate: func(c *Config) { c.Archive.Backend = "ftp" }, consumer: true, want: "archive.backend"},
		{name: "model key", mutate: func(c *Config) { c.Model.APIKey = "" }, consumer: true, want: "model.api_key"},
		{name: "subscription", mutate: func(c *Config) { c.Channel.Subscription = "" }, consumer: true, want: "channel.subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			var err error
			if tt.consumer {
				err = cfg.ValidateConsumer()
			} else {
				err = cfg.ValidatePublisher()
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestMask(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Mask(""))
	require.Equal(t, "****", Mask("abcd"))
	require.Equal(t, "abcdefghij...", Mask("abcdefghijklmnop"))
}

// Package config loads and validates noticewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. NOTICEWATCH_REDIS_ADDR.
const EnvPrefix = "NOTICEWATCH"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	DocStore  DocStoreConfig  `mapstructure:"docstore"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Detail    DetailConfig    `mapstructure:"detail"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Model     ModelConfig     `mapstructure:"model"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// OpsConfig controls the health/metrics HTTP listener. Port 0 disables it.
type OpsConfig struct {
	Port        int    `mapstructure:"port"`
	ServiceName string `mapstructure:"service_name"`
}

// SchedulerConfig governs the publisher loop.
type SchedulerConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	WindowDays      int    `mapstructure:"window_days"`
	Timezone        string `mapstructure:"timezone"`
}

// SourceConfig points at the upstream disclosure API.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ServiceKey     string `mapstructure:"service_key"`
	PerPage        int    `mapstructure:"per_page"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RedisConfig addresses the dedup store.
type RedisConfig struct {
	Backend    string `mapstructure:"backend"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// ChannelConfig selects and addresses the message channel.
type ChannelConfig struct {
	Backend        string `mapstructure:"backend"`
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
	Subscription   string `mapstructure:"subscription"`
	ConnectRetries int    `mapstructure:"connect_retries"`
	RetryDelaySec  int    `mapstructure:"retry_delay_seconds"`
}

// ConsumerConfig governs the pipeline consumer.
type ConsumerConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// DocStoreConfig selects the document database.
type DocStoreConfig struct {
	Backend              string `mapstructure:"backend"`
	URI                  string `mapstructure:"uri"`
	Database             string `mapstructure:"database"`
	NoticeCollection     string `mapstructure:"notice_collection"`
	EnrichmentCollection string `mapstructure:"enrichment_collection"`
	MaxConns             int32  `mapstructure:"max_conns"`
}

// GeocodeConfig configures Stage A.
type GeocodeConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	KeyID          string  `mapstructure:"key_id"`
	Key            string  `mapstructure:"key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	BackoffMs      int     `mapstructure:"backoff_ms"`
	CandidateGapMs int     `mapstructure:"candidate_gap_ms"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
}

// DetailConfig configures attachment discovery and download.
type DetailConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	AttachmentHost     string `mapstructure:"attachment_host"`
	AttachmentMarker   string `mapstructure:"attachment_marker"`
	UserAgent          string `mapstructure:"user_agent"`
	PageTimeoutSeconds int    `mapstructure:"page_timeout_seconds"`
	PDFTimeoutSeconds  int    `mapstructure:"pdf_timeout_seconds"`
	MaxPDFBytes        int    `mapstructure:"max_pdf_bytes"`
	JSONDir            string `mapstructure:"json_dir"`
}

// ArchiveConfig selects the object store for attachments.
type ArchiveConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	BaseDir  string `mapstructure:"base_dir"`
}

// ModelConfig configures the structured extraction model.
type ModelConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Name           string `mapstructure:"name"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from an optional .env file, an optional YAML file and
// the environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = v.GetString("config_file")
	}
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
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("ops.service_name", "noticewatch")

	v.SetDefault("scheduler.interval_seconds", 300)
	v.SetDefault("scheduler.window_days", 30)
	v.SetDefault("scheduler.timezone", "Asia/Seoul")

	v.SetDefault("source.base_url", "https://api.odcloud.kr/api/ApplyhomeInfoDetailSvc/v1/getAPTLttotPblancDetail")
	v.SetDefault("source.service_key", "")
	v.SetDefault("source.per_page", 100)
	v.SetDefault("source.timeout_seconds", 15)

	v.SetDefault("redis.backend", "redis")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_seconds", 2592000)

	v.SetDefault("channel.backend", "pubsub")
	v.SetDefault("channel.project_id", "")
	v.SetDefault("channel.topic", "cheongyak.new_notice")
	v.SetDefault("channel.subscription", "cheongyak-consumer-group")
	v.SetDefault("channel.connect_retries", 10)
	v.SetDefault("channel.retry_delay_seconds", 5)

	v.SetDefault("consumer.workers", 1)
	v.SetDefault("consumer.queue_depth", 16)

	v.SetDefault("docstore.backend", "mongo")
	v.SetDefault("docstore.uri", "mongodb://localhost:27017")
	v.SetDefault("docstore.database", "home_planner")
	v.SetDefault("docstore.notice_collection", "applyhome_data")
	v.SetDefault("docstore.enrichment_collection", "applyhome_json")
	v.SetDefault("docstore.max_conns", 4)

	v.SetDefault("geocode.base_url", "https://maps.apigw.ntruss.com/map-geocode/v2/geocode")
	v.SetDefault("geocode.key_id", "")
	v.SetDefault("geocode.key", "")
	v.SetDefault("geocode.timeout_seconds", 7)
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("geocode.backoff_ms", 500)
	v.SetDefault("geocode.candidate_gap_ms", 200)
	v.SetDefault("geocode.rate_limit_rps", 0)

	v.SetDefault("detail.base_url", "https://www.applyhome.co.kr/ai/aia/selectAPTLttotPblancDetail.do")
	v.SetDefault("detail.attachment_host", "https://static.applyhome.co.kr")
	v.SetDefault("detail.attachment_marker", "getAtchmnfl.do")
	v.SetDefault("detail.user_agent", "Mozilla/5.0")
	v.SetDefault("detail.page_timeout_seconds", 15)
	v.SetDefault("detail.pdf_timeout_seconds", 60)
	v.SetDefault("detail.max_pdf_bytes", 64<<20)
	v.SetDefault("detail.json_dir", "./jsons")

	v.SetDefault("archive.backend", "s3")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.region", "ap-northeast-2")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.base_dir", "./archive")

	v.SetDefault("model.api_key", "")
	v.SetDefault("model.name", "gemini-2.5-flash")
	v.SetDefault("model.timeout_seconds", 120)

	v.SetDefault("config_file", "")
}

// ValidatePublisher enforces the settings the publisher daemon needs.
func (c Config) ValidatePublisher() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0")
	}
	if c.Scheduler.WindowDays < 0 {
		return fmt.Errorf("scheduler.window_days must be >= 0")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if strings.TrimSpace(c.Source.ServiceKey) == "" {
		return fmt.Errorf("source.service_key is required")
	}
	if c.Source.PerPage <= 0 {
		return fmt.Errorf("source.per_page must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Redis.TTLSeconds <= 0 {
		return fmt.Errorf("redis.ttl_seconds must be > 0")
	}
	if c.Redis.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis backend")
	}
	return nil
}

// ValidateConsumer enforces the settings the consumer daemon needs.
func (c Config) ValidateConsumer() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Channel.Backend == "pubsub" && c.Channel.Subscription == "" {
		return fmt.Errorf("channel.subscription is required for the pubsub backend")
	}
	if c.Consumer.Workers <= 0 {
		return fmt.Errorf("consumer.workers must be > 0")
	}
	if c.Consumer.QueueDepth <= 0 {
		return fmt.Errorf("consumer.queue_depth must be > 0")
	}
	if c.Geocode.MaxAttempts <= 0 {
		return fmt.Errorf("geocode.max_attempts must be > 0")
	}
	if c.Detail.PDFTimeoutSeconds <= 0 || c.Detail.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("detail timeouts must be > 0")
	}
	switch c.Archive.Backend {
	case "s3", "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the %s backend", c.Archive.Backend)
		}
	case "local", "memory":
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if strings.TrimSpace(c.Model.APIKey) == "" {
		return fmt.Errorf("model.api_key is required")
	}
	return nil
}

func (c Config) validateCommon() error {
	switch c.Channel.Backend {
	case "pubsub":
		if c.Channel.ProjectID == "" {
			return fmt.Errorf("channel.project_id is required for the pubsub backend")
		}
		if c.Channel.Topic == "" {
			return fmt.Errorf("channel.topic is required")
		}
	case "memory":
	default:
		return fmt.Errorf("channel.backend %q is not supported", c.Channel.Backend)
	}
	switch c.DocStore.Backend {
	case "mongo", "postgres":
		if c.DocStore.URI == "" {
			return fmt.Errorf("docstore.uri is required for the %s backend", c.DocStore.Backend)
		}
	case "memory":
	default:
		return fmt.Errorf("docstore.backend %q is not supported", c.DocStore.Backend)
	}
	if c.Ops.Port < 0 {
		return fmt.Errorf("ops.port must be >= 0")
	}
	return nil
}

// Interval returns the scheduler period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// DedupTTL returns how long a claimed notice stays claimed.
func (c Config) DedupTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// Location resolves the scheduler time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Seconds converts a whole-second setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond setting to a duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Mask hides all but the first ten characters of a secret for startup logs.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	r := []rune(secret)
	if len(r) <= 10 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:10]) + "..."
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Scorer    ScorerConfig    `mapstructure:"scorer"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Store     StoreConfig     `mapstructure:"store"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the review API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WorkflowConfig governs the per-product state machine.
type WorkflowConfig struct {
	MaxAttempts       int    `mapstructure:"max_attempts"`
	MaxCandidates     int    `mapstructure:"max_candidates"`
	ClearURLOnExhaust bool   `mapstructure:"clear_url_on_exhaust"`
	EventTopic        string `mapstructure:"event_topic"`
}

// ScorerConfig holds quality check thresholds and weights.
type ScorerConfig struct {
	MinWidth            int     `mapstructure:"min_width"`
	MinHeight           int     `mapstructure:"min_height"`
	ScoreThreshold      float64 `mapstructure:"score_threshold"`
	WatermarkConfidence float64 `mapstructure:"watermark_confidence"`
	SubjectCheckEnabled bool    `mapstructure:"subject_check_enabled"`
}

// SchedulerConfig governs batch fan-out.
type SchedulerConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	MaxRetries    int `mapstructure:"max_retries"`
}

// FetcherConfig configures the image fetcher.
type FetcherConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBytes       int64  `mapstructure:"max_bytes"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ProviderConfig selects and tunes the search provider.
type ProviderConfig struct {
	Kind      string  `mapstructure:"kind"`
	BaseURL   string  `mapstructure:"base_url"`
	RateRPS   float64 `mapstructure:"rate_rps"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// StoreConfig selects the product store backend.
type StoreConfig struct {
	Kind  string `mapstructure:"kind"`
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// BlobConfig selects where winning image bytes are archived.
type BlobConfig struct {
	Kind      string `mapstructure:"kind"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig selects the workflow event bus.
type PublisherConfig struct {
	Kind      string `mapstructure:"kind"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMAGEPICK")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("workflow.max_attempts", 3)
	v.SetDefault("workflow.max_candidates", 8)
	v.SetDefault("workflow.clear_url_on_exhaust", true)
	v.SetDefault("workflow.event_topic", "image-review")
	v.SetDefault("scorer.min_width", 800)
	v.SetDefault("scorer.min_height", 800)
	v.SetDefault("scorer.score_threshold", 60)
	v.SetDefault("scorer.watermark_confidence", 0.65)
	v.SetDefault("scorer.subject_check_enabled", false)
	v.SetDefault("scheduler.max_concurrent", 4)
	v.SetDefault("scheduler.max_retries", 2)
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("fetcher.max_bytes", 8*1024*1024)
	v.SetDefault("fetcher.user_agent", "imagepick-bot/0.1")
	v.SetDefault("provider.kind", "searx")
	v.SetDefault("provider.rate_rps", 1)
	v.SetDefault("provider.rate_burst", 1)
	v.SetDefault("store.kind", "memory")
	v.SetDefault("store.table", "products")
	v.SetDefault("blob.kind", "noop")
	v.SetDefault("blob.prefix", "winners")
	v.SetDefault("publisher.kind", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workflow.MaxAttempts <= 0 {
		return fmt.Errorf("workflow.max_attempts must be > 0")
	}
	if c.Workflow.MaxCandidates <= 0 {
		return fmt.Errorf("workflow.max_candidates must be > 0")
	}
	if c.Scorer.MinWidth <= 0 || c.Scorer.MinHeight <= 0 {
		return fmt.Errorf("scorer.min_width and scorer.min_height must be > 0")
	}
	if c.Scorer.ScoreThreshold < 0 || c.Scorer.ScoreThreshold > 100 {
		return fmt.Errorf("scorer.score_threshold must be in [0,100]")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler.max_concurrent must be > 0")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxBytes <= 0 {
		return fmt.Errorf("fetcher.max_bytes must be > 0")
	}
	if c.Store.Kind == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when store.kind is postgres")
	}
	if c.Blob.Kind == "gcs" && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.kind is gcs")
	}
	if c.Blob.Kind == "local" && c.Blob.BaseDir == "" {
		return fmt.Errorf("blob.base_dir must be set when blob.kind is local")
	}
	if c.Publisher.Kind == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.TopicName == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when publisher.kind is pubsub")
	}
	return nil
}

// FetchTimeout converts the fetcher timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

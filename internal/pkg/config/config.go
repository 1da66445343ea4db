package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	QueueCapacity int    `mapstructure:"QUEUE_CAPACITY"`
	NumWorkers    int    `mapstructure:"NUM_WORKERS"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	ClientKey     string `mapstructure:"CLIENT_KEY"`

	// Collector config
	SourcesFile     string `mapstructure:"SOURCES_FILE"`
	CollectInterval int    `mapstructure:"COLLECT_INTERVAL"` // seconds
	MaxPerFeed      int    `mapstructure:"MAX_PER_FEED"`
	FetchTimeout    int    `mapstructure:"FETCH_TIMEOUT"` // seconds

	// Scorer config
	MinContentLength int    `mapstructure:"MIN_CONTENT_LENGTH"`
	ExtractThreshold int    `mapstructure:"EXTRACT_THRESHOLD"`
	MaxAgeHours      int    `mapstructure:"MAX_AGE_HOURS"`
	ScoreFloor       int    `mapstructure:"SCORE_FLOOR"`
	Languages        string `mapstructure:"LANGUAGES"` // comma-separated ISO 639-1 codes

	// Duplicate cache config
	DedupMaxEntries     int     `mapstructure:"DEDUP_MAX_ENTRIES"`
	DedupRetentionHours int     `mapstructure:"DEDUP_RETENTION_HOURS"`
	DedupSimilarity     float64 `mapstructure:"DEDUP_SIMILARITY"`
	CacheSweepInterval  int     `mapstructure:"CACHE_SWEEP_INTERVAL"` // seconds

	// Rate limiter config
	RatePublishPerSecond   int `mapstructure:"RATE_PUBLISH_PER_SECOND"`
	RatePublishPerMinute   int `mapstructure:"RATE_PUBLISH_PER_MINUTE"`
	RatePublishPerHour     int `mapstructure:"RATE_PUBLISH_PER_HOUR"`
	RatePublishPerDay      int `mapstructure:"RATE_PUBLISH_PER_DAY"`
	RatePublishPerMonth    int `mapstructure:"RATE_PUBLISH_PER_MONTH"`
	RateReadPerSecond      int `mapstructure:"RATE_READ_PER_SECOND"`
	RateReadPerMinute      int `mapstructure:"RATE_READ_PER_MINUTE"`
	RateReadPerQuarter     int `mapstructure:"RATE_READ_PER_QUARTER"`
	RateReadPerHour        int `mapstructure:"RATE_READ_PER_HOUR"`
	BurstCapacity          int `mapstructure:"BURST_CAPACITY"`
	PerSecondAllowance     int `mapstructure:"PER_SECOND_ALLOWANCE"`
	MaxConsecutiveFailures int `mapstructure:"MAX_CONSECUTIVE_FAILURES"`
	BanMinutes             int `mapstructure:"BAN_MINUTES"`

	// Ledger config
	LedgerBackend       string `mapstructure:"LEDGER_BACKEND"` // "file" or "redis"
	LedgerPath          string `mapstructure:"LEDGER_PATH"`
	LedgerMaxEntries    int    `mapstructure:"LEDGER_MAX_ENTRIES"`
	LedgerRetentionDays int    `mapstructure:"LEDGER_RETENTION_DAYS"`
	LedgerSaveInterval  int    `mapstructure:"LEDGER_SAVE_INTERVAL"`  // seconds
	LedgerSweepInterval int    `mapstructure:"LEDGER_SWEEP_INTERVAL"` // seconds

	// Redis config (used when LEDGER_BACKEND=redis)
	RedisHost      string `mapstructure:"REDIS_HOST"`
	RedisPort      string `mapstructure:"REDIS_PORT"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	LedgerRedisKey string `mapstructure:"LEDGER_REDIS_KEY"`

	// Publisher config
	APIURL      string `mapstructure:"API_URL"`
	BearerToken string `mapstructure:"BEARER_TOKEN"`
	DryRun      bool   `mapstructure:"DRY_RUN"`
	TweetLimit  int    `mapstructure:"TWEET_LIMIT"`
	PublishPace int    `mapstructure:"PUBLISH_PACE"` // minimum seconds between API calls
}

func LoadConfig() (*Config, error) {
	// Set defaults for configuration values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("QUEUE_CAPACITY", 500)
	viper.SetDefault("NUM_WORKERS", 1) // Single logical writer
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CLIENT_KEY", "publisher")

	// Collector defaults
	viper.SetDefault("SOURCES_FILE", "config/sources.yaml")
	viper.SetDefault("COLLECT_INTERVAL", 900)
	viper.SetDefault("MAX_PER_FEED", 10)
	viper.SetDefault("FETCH_TIMEOUT", 20)

	// Scorer defaults
	viper.SetDefault("MIN_CONTENT_LENGTH", 80)
	viper.SetDefault("EXTRACT_THRESHOLD", 160)
	viper.SetDefault("MAX_AGE_HOURS", 48)
	viper.SetDefault("SCORE_FLOOR", 35)
	viper.SetDefault("LANGUAGES", "en")

	// Duplicate cache defaults
	viper.SetDefault("DEDUP_MAX_ENTRIES", 50000)
	viper.SetDefault("DEDUP_RETENTION_HOURS", 24)
	viper.SetDefault("DEDUP_SIMILARITY", 0.8)
	viper.SetDefault("CACHE_SWEEP_INTERVAL", 3600)

	// Rate limiter defaults
	viper.SetDefault("RATE_PUBLISH_PER_SECOND", 1)
	viper.SetDefault("RATE_PUBLISH_PER_MINUTE", 5)
	viper.SetDefault("RATE_PUBLISH_PER_HOUR", 25)
	viper.SetDefault("RATE_PUBLISH_PER_DAY", 50)
	viper.SetDefault("RATE_PUBLISH_PER_MONTH", 1500)
	viper.SetDefault("RATE_READ_PER_SECOND", 1)
	viper.SetDefault("RATE_READ_PER_MINUTE", 15)
	viper.SetDefault("RATE_READ_PER_QUARTER", 180)
	viper.SetDefault("RATE_READ_PER_HOUR", 300)
	viper.SetDefault("BURST_CAPACITY", 10)
	viper.SetDefault("PER_SECOND_ALLOWANCE", 10)
	viper.SetDefault("MAX_CONSECUTIVE_FAILURES", 5)
	viper.SetDefault("BAN_MINUTES", 5)

	// Ledger defaults
	viper.SetDefault("LEDGER_BACKEND", "file")
	viper.SetDefault("LEDGER_PATH", "data/published.json")
	viper.SetDefault("LEDGER_MAX_ENTRIES", 10000)
	viper.SetDefault("LEDGER_RETENTION_DAYS", 90)
	viper.SetDefault("LEDGER_SAVE_INTERVAL", 60)
	viper.SetDefault("LEDGER_SWEEP_INTERVAL", 3600)

	// Redis defaults
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("LEDGER_REDIS_KEY", "autopress_ledger")

	// Publisher defaults
	viper.SetDefault("API_URL", "https://api.twitter.com/2/tweets")
	viper.SetDefault("BEARER_TOKEN", "")
	viper.SetDefault("DRY_RUN", true)
	viper.SetDefault("TWEET_LIMIT", 280)
	viper.SetDefault("PUBLISH_PACE", 30)

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

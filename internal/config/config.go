package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers      []string
	KafkaSourceTopic  string
	KafkaVerdictTopic string
	KafkaGroupID      string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	Concurrency        int

	DatabaseURL   string
	CommitTimeout time.Duration
	NotifyTimeout time.Duration
	LockShards    int

	// Image classifier configuration.
	ClassifierURL       string
	ClassifierToken     string
	ClassifierEnabled   bool
	ClassifierTimeout   time.Duration
	ClassifierCacheSize int

	// Official alert feed configuration. An empty URL selects the development feed.
	AlertFeedURL     string
	AlertFeedToken   string
	AlertFeedTimeout time.Duration
	RedisURL         string
	AlertCacheTTL    time.Duration

	// Correlation and decision tuning.
	MatchWindow          time.Duration
	DefaultAlertRadiusKm float64
	RejectConfidence     float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "hazard-reports-submitted"),
		KafkaVerdictTopic:  sharedcfg.EnvOrDefault("KAFKA_VERDICT_TOPIC", "hazard-report-verdicts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "hazard-report-validator"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ClassifierURL:   os.Getenv("CLASSIFIER_URL"),
		ClassifierToken: os.Getenv("CLASSIFIER_TOKEN"),
		AlertFeedURL:    os.Getenv("ALERT_FEED_URL"),
		AlertFeedToken:  os.Getenv("ALERT_FEED_TOKEN"),
		RedisURL:        os.Getenv("REDIS_URL"),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"CLASSIFIER_TIMEOUT", "10s", &cfg.ClassifierTimeout},
		{"ALERT_FEED_TIMEOUT", "10s", &cfg.AlertFeedTimeout},
		{"ALERT_CACHE_TTL", "60s", &cfg.AlertCacheTTL},
		{"MATCH_WINDOW", "24h", &cfg.MatchWindow},
		{"COMMIT_TIMEOUT", "10s", &cfg.CommitTimeout},
		{"NOTIFY_TIMEOUT", "5s", &cfg.NotifyTimeout},
	}
	for _, d := range durations {
		if *d.dest, err = parsePositiveDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"CLASSIFIER_CACHE_SIZE", 1000, &cfg.ClassifierCacheSize},
		{"CONCURRENCY", 4, &cfg.Concurrency},
		{"LOCK_SHARDS", 64, &cfg.LockShards},
	}
	for _, i := range ints {
		if *i.dest, err = parsePositiveInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	if cfg.DefaultAlertRadiusKm, err = parseFloat("DEFAULT_ALERT_RADIUS_KM", 50); err != nil {
		return nil, err
	}
	if cfg.DefaultAlertRadiusKm <= 0 {
		return nil, errors.New("invalid DEFAULT_ALERT_RADIUS_KM: must be positive")
	}
	if cfg.RejectConfidence, err = parseFloat("REJECT_CONFIDENCE", 0.5); err != nil {
		return nil, err
	}
	if cfg.RejectConfidence < 0 || cfg.RejectConfidence > 1 {
		return nil, errors.New("invalid REJECT_CONFIDENCE: must be within [0, 1]")
	}

	cfg.ClassifierEnabled = cfg.ClassifierURL != ""
	if v := os.Getenv("CLASSIFIER_ENABLED"); v != "" {
		cfg.ClassifierEnabled = v == "true"
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaVerdictTopic == "" {
		return nil, errors.New("KAFKA_VERDICT_TOPIC is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.ClassifierEnabled && cfg.ClassifierURL == "" {
		return nil, errors.New("CLASSIFIER_ENABLED is true but CLASSIFIER_URL is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

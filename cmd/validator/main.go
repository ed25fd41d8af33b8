package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/hazard-report-validator/internal/adapter/alertfeed"
	"github.com/couchcryptid/hazard-report-validator/internal/adapter/classifier"
	"github.com/couchcryptid/hazard-report-validator/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/hazard-report-validator/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-report-validator/internal/adapter/postgres"
	"github.com/couchcryptid/hazard-report-validator/internal/config"
	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
	"github.com/couchcryptid/hazard-report-validator/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare database schema", "error", err)
		os.Exit(1)
	}

	cls, err := newClassifier(cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to create classifier", "error", err)
		os.Exit(1)
	}

	feed, rdb := newAlertFeed(ctx, cfg, clock, metrics, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	notifier := kafkaadapter.NewNotifier(cfg, clock, logger)

	validator := pipeline.NewValidator(cls, feed, store, notifier, logger, metrics, pipeline.Options{
		ClassifierTimeout: cfg.ClassifierTimeout,
		AlertFeedTimeout:  cfg.AlertFeedTimeout,
		CommitTimeout:     cfg.CommitTimeout,
		NotifyTimeout:     cfg.NotifyTimeout,
		MatchWindow:       cfg.MatchWindow,
		DefaultRadiusKm:   cfg.DefaultAlertRadiusKm,
		RejectConfidence:  &cfg.RejectConfidence,
		LockShards:        cfg.LockShards,
		Clock:             clock,
	})
	consumer := pipeline.NewConsumer(reader, validator, logger, metrics, cfg.BatchSize, cfg.Concurrency)

	srv := httpadapter.NewServer(cfg.HTTPAddr, logger, consumer, store)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start validation consumer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			logger.Error("consumer error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// In-flight reports finish their commit before the connections close.
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("consumer did not stop before shutdown timeout")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := notifier.Close(); err != nil {
		logger.Error("kafka notifier close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newClassifier builds the image classifier (feature-flagged via
// CLASSIFIER_ENABLED / CLASSIFIER_URL). A nil classifier is valid: every
// report is then decided without image evidence.
func newClassifier(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.Classifier, error) {
	if !cfg.ClassifierEnabled {
		logger.Info("image classifier disabled")
		return nil, nil
	}
	client := classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierToken, cfg.ClassifierTimeout, metrics, logger)
	cached, err := classifier.NewCachedClassifier(client, cfg.ClassifierCacheSize, metrics)
	if err != nil {
		return nil, err
	}
	logger.Info("image classifier enabled", "cache_size", cfg.ClassifierCacheSize, "timeout", cfg.ClassifierTimeout)
	return cached, nil
}

// newAlertFeed selects the official feed or the development feed and, when
// REDIS_URL is set, shares its snapshot between replicas. An unreachable
// Redis disables the snapshot cache rather than the service.
func newAlertFeed(ctx context.Context, cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (domain.AlertFeed, *redis.Client) {
	var feed domain.AlertFeed
	if cfg.AlertFeedURL == "" {
		logger.Warn("ALERT_FEED_URL not set, using development alert feed")
		feed = alertfeed.NewMockFeed(clock)
	} else {
		feed = alertfeed.NewClient(cfg.AlertFeedURL, cfg.AlertFeedToken, cfg.AlertFeedTimeout, metrics, logger)
		logger.Info("official alert feed enabled", "timeout", cfg.AlertFeedTimeout)
	}

	if cfg.RedisURL == "" {
		return feed, nil
	}
	rdb, err := alertfeed.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, alert snapshot cache disabled", "error", err)
		return feed, nil
	}
	logger.Info("alert snapshot cache enabled", "ttl", cfg.AlertCacheTTL)
	return alertfeed.NewCachedFeed(feed, rdb, cfg.AlertCacheTTL, metrics, logger), rdb
}

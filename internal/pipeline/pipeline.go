package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize submitted-report messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// ReportProcessor computes and commits the verdict for one report.
type ReportProcessor interface {
	Process(ctx context.Context, report domain.HazardReport) (domain.Verdict, error)
}

// Consumer feeds submitted reports from the source into a ReportProcessor.
type Consumer struct {
	extractor   BatchExtractor
	processor   ReportProcessor
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	concurrency int
}

// NewConsumer creates a Consumer. concurrency bounds how many reports of one
// batch are processed at the same time.
func NewConsumer(e BatchExtractor, p ReportProcessor, logger *slog.Logger, metrics *observability.Metrics, batchSize, concurrency int) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Consumer{
		extractor:   e,
		processor:   p,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// CheckReadiness returns nil once at least one report has been processed,
// or an error describing why the service is not yet ready.
func (c *Consumer) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("consumer has not processed any reports yet")
	}
	return nil
}

// Run consumes and validates reports until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "batch_size", c.batchSize, "concurrency", c.concurrency)
	c.metrics.PipelineRunning.Set(1)
	defer c.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !c.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-validate-commit cycle. Returns false if the consumer should stop.
func (c *Consumer) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	rawBatch, err := c.extractor.ExtractBatch(ctx, c.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("extract batch failed", "error", err)
		return c.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	c.metrics.ReportsConsumed.Add(float64(len(rawBatch)))
	c.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	reports := make([]domain.HazardReport, 0, len(rawBatch))
	for _, raw := range rawBatch {
		report, err := domain.ParseReport(raw)
		if err != nil {
			c.logger.Warn("invalid report, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			c.metrics.InvalidReports.Inc()
			continue
		}
		reports = append(reports, report)
	}

	processed := len(reports)

	// Commit failures are retried in place so offsets only move past reports
	// whose verdict is durable.
	for len(reports) > 0 {
		reports = c.processAll(ctx, reports)
		if len(reports) == 0 {
			break
		}
		c.logger.Warn("retrying reports after commit failure", "pending", len(reports), "backoff", backoff.String())
		if !c.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
	}
	*backoff = 200 * time.Millisecond

	for _, raw := range rawBatch {
		c.commitOffset(ctx, raw)
	}
	if processed > 0 {
		c.ready.Store(true)
	}
	return true
}

// processAll validates reports concurrently and returns the ones whose verdict
// could not be committed.
func (c *Consumer) processAll(ctx context.Context, reports []domain.HazardReport) []domain.HazardReport {
	var (
		mu     sync.Mutex
		failed []domain.HazardReport
		g      errgroup.Group
	)
	g.SetLimit(c.concurrency)

	for _, report := range reports {
		g.Go(func() error {
			if _, err := c.processor.Process(ctx, report); err != nil {
				mu.Lock()
				failed = append(failed, report)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failed
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the consumer should stop.
func (c *Consumer) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (c *Consumer) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		c.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

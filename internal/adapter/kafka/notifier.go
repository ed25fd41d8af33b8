package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hazard-report-validator/internal/config"
	"github.com/couchcryptid/hazard-report-validator/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes verdict events to the verdict topic.
// It implements domain.Notifier.
type Notifier struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured verdict topic.
func NewNotifier(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaVerdictTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifier{writer: w, clock: clock, logger: logger}
}

// Notify publishes one verdict event keyed by report id, so every verdict for
// a report lands on the same partition in decision order.
func (n *Notifier) Notify(ctx context.Context, reportID string, v domain.Verdict) error {
	event := domain.NewVerdictEvent(uuid.NewString(), reportID, v, n.clock.Now().UTC())
	out, err := domain.SerializeVerdictEvent(event)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, serializeToMessage(out)); err != nil {
		return fmt.Errorf("publish verdict for %s: %w", reportID, err)
	}
	n.logger.Debug("verdict published", "report_id", reportID, "event_id", event.EventID, "status", string(v.Status))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage converts an output event into a Kafka message with
// headers in a stable order.
func serializeToMessage(out domain.OutputEvent) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(out.Headers))
	for _, k := range slices.Sorted(maps.Keys(out.Headers)) {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(out.Headers[k])})
	}
	return kafkago.Message{
		Key:     out.Key,
		Value:   out.Value,
		Headers: headers,
	}
}

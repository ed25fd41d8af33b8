//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-report-validator/internal/adapter/alertfeed"
	"github.com/couchcryptid/hazard-report-validator/internal/adapter/classifier"
	"github.com/couchcryptid/hazard-report-validator/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-report-validator/internal/adapter/postgres"
	"github.com/couchcryptid/hazard-report-validator/internal/config"
	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
	"github.com/couchcryptid/hazard-report-validator/internal/pipeline"
)

const (
	testSourceTopic  = "test-reports"
	testVerdictTopic = "test-verdicts"
)

// verdictMessage holds a deserialized message read from the verdict topic.
type verdictMessage struct {
	Event   domain.VerdictEvent
	Key     string
	Headers map[string]string
}

func readVerdict(ctx context.Context, t *testing.T, consumer *kafkago.Reader) verdictMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from verdict topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.VerdictEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal verdict message")
	return verdictMessage{Event: event, Key: string(msg.Key), Headers: headers}
}

// stubClassifier answers by image reference the way the vision service would.
func stubClassifier(t *testing.T) *httptest.Server {
	t.Helper()
	answers := map[string]string{
		"uploads/surge.jpg": `{"ocean_related": true, "hazard_detected": true, "hazard_type": "cyclone", "confidence": 0.88}`,
		"uploads/cat.jpg":   `{"ocean_related": false, "hazard_detected": false, "confidence": 0.93}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImageRef string `json:"image_ref"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		body, ok := answers[req.ImageRef]
		if !ok {
			http.Error(w, "unknown image", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func publishReports(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func reportMessage(t *testing.T, r domain.HazardReport) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(r)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(r.ID), Value: payload}
}

// TestKafkaReaderNotifier verifies the adapter layer: kafka.Reader and
// kafka.Notifier correctly round-trip through Kafka.
func TestKafkaReaderNotifier(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testVerdictTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaVerdictTopic:  testVerdictTopic,
		KafkaGroupID:       fmt.Sprintf("test-reader-%d", time.Now().UnixNano()),
		BatchFlushInterval: time.Second,
	}

	report := domain.HazardReport{
		ID:          "rpt-int-1",
		HazardType:  domain.HazardHighTide,
		Geo:         domain.Geo{Lat: 18.94, Lon: 72.83},
		SubmittedAt: time.Date(2024, time.July, 3, 6, 0, 0, 0, time.UTC),
	}
	msg := reportMessage(t, report)
	publishReports(ctx, t, broker, msg)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("rpt-int-1"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	parsed, err := domain.ParseReport(raw)
	require.NoError(t, err)
	assert.Equal(t, report, parsed)

	notifier := kafka.NewNotifier(cfg, nil, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })
	require.NoError(t, notifier.Notify(ctx, parsed.ID, domain.Verdict{Status: domain.StatusVerified, Reason: "Matches 1 official alert(s)"}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testVerdictTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	vm := readVerdict(ctx, t, consumer)
	assert.Equal(t, "rpt-int-1", vm.Key)
	assert.Equal(t, "verified", vm.Headers["status"])
	_, err = time.Parse(time.RFC3339, vm.Headers["decided_at"])
	assert.NoError(t, err, "decided_at should be valid RFC3339")
	assert.Equal(t, domain.StatusVerified, vm.Event.Status)
	assert.NotEmpty(t, vm.Event.EventID)
}

// TestValidationEndToEnd wires Kafka, PostgreSQL, an HTTP classifier and the
// development alert feed, and checks verdicts are stored and announced while a
// poison message is skipped.
func TestValidationEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	dsn := startPostgres(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testVerdictTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaVerdictTopic:  testVerdictTopic,
		KafkaGroupID:       fmt.Sprintf("test-pipeline-%d", time.Now().UnixNano()),
		BatchFlushInterval: time.Second,
	}

	now := time.Now().UTC()
	verified := domain.HazardReport{
		ID: "rpt-surge", HazardType: domain.HazardCyclone, Severity: domain.SeverityHigh,
		Geo: domain.Geo{Lat: 13.05, Lon: 80.28}, SubmittedAt: now, ImageRef: "uploads/surge.jpg",
	}
	rejected := domain.HazardReport{
		ID: "rpt-cat", HazardType: domain.HazardCyclone, Severity: domain.SeverityLow,
		Geo: domain.Geo{Lat: 13.05, Lon: 80.28}, SubmittedAt: now, ImageRef: "uploads/cat.jpg",
	}
	pending := domain.HazardReport{
		ID: "rpt-unknown", HazardType: domain.HazardTsunami, Severity: domain.SeverityMedium,
		Geo: domain.Geo{Lat: 8.5, Lon: 76.9}, SubmittedAt: now, ImageRef: "uploads/missing.jpg",
	}
	publishReports(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		reportMessage(t, verified),
		reportMessage(t, rejected),
		reportMessage(t, pending),
	)

	store, err := postgres.NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(ctx))

	metrics := observability.NewMetricsForTesting()
	classifierSrv := stubClassifier(t)
	cls := classifier.NewClient(classifierSrv.URL, "", 5*time.Second, metrics, discardLogger())

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	notifier := kafka.NewNotifier(cfg, nil, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	validator := pipeline.NewValidator(cls, alertfeed.NewMockFeed(nil), store, notifier, discardLogger(), metrics, pipeline.Options{})
	consumer := pipeline.NewConsumer(reader, validator, discardLogger(), metrics, 50, 4)

	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(runCtx) }()

	verdicts := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testVerdictTopic,
		GroupID:     fmt.Sprintf("test-verdicts-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = verdicts.Close() })

	received := map[string]verdictMessage{}
	for len(received) < 2 {
		vm := readVerdict(ctx, t, verdicts)
		received[vm.Key] = vm
	}

	assert.Equal(t, domain.StatusVerified, received["rpt-surge"].Event.Status)
	assert.Contains(t, received["rpt-surge"].Event.Reason, "Cyclone Warning - Bay of Bengal")
	assert.Equal(t, domain.StatusRejected, received["rpt-cat"].Event.Status)
	assert.Equal(t, domain.ReasonNotOceanHazard, received["rpt-cat"].Event.Reason)

	require.Eventually(t, func() bool {
		return consumer.CheckReadiness(ctx) == nil
	}, 30*time.Second, 200*time.Millisecond)

	runCancel()
	require.NoError(t, <-errCh)

	surge, err := store.Verdict(ctx, "rpt-surge")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, surge.Status)
	assert.Equal(t, "1", surge.ClosestAlertID)
	assert.True(t, surge.HasAssessment)

	unknown, err := store.Verdict(ctx, "rpt-unknown")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, unknown.Status)
	assert.Equal(t, domain.ReasonManualReview, unknown.Reason)
	assert.False(t, unknown.HasAssessment)

	// Pending verdicts are stored but never announced.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = verdicts.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no third verdict event")
}

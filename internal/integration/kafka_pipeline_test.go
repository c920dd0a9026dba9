//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-runoff/internal/config"
	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
	"github.com/couchcryptid/storm-data-runoff/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-site-requests"
	testSinkTopic   = "test-estimates"
)

// estimateMessage holds a deserialized message read from the sink topic.
type estimateMessage struct {
	Estimate domain.SiteEstimate
	Key      string
	Headers  map[string]string
}

// readEstimate reads a single message from the sink consumer and deserializes it.
func readEstimate(ctx context.Context, t *testing.T, consumer *kafkago.Reader) estimateMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var est domain.SiteEstimate
	require.NoError(t, json.Unmarshal(msg.Value, &est), "unmarshal sink message")

	return estimateMessage{Estimate: est, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func newTransformer() *pipeline.RunoffTransformer {
	return pipeline.NewTransformer(nil, nil, 7, domain.BasisTotal, discardLogger(), observability.NewMetricsForTesting())
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader and
// kafka.Writer round-trip a site request and its estimate through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	fixture := loadFixtures(t)[1] // clayey-steep: CN 90, Q 27.11
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("test-key"),
		Value: fixture.Request,
	}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("test-key"), raw.Key)
	assert.JSONEq(t, string(fixture.Request), string(raw.Value))
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	out, err := newTransformer().Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	msg := readEstimate(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "site-clayey-steep", msg.Headers["site_id"])
	assert.Equal(t, "forecast", msg.Headers["mode"])
	_, err = time.Parse(time.RFC3339, msg.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, msg.Estimate.ID, msg.Key)
	assert.Empty(t, fixture.Expected.Check(msg.Estimate, nil))
}

// TestPipelineEndToEnd wires Reader, Transformer, and Writer against a real
// broker and checks every valid fixture arrives with its expected values.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	fixtures := loadFixtures(t)
	expectedBySite := make(map[string]int)
	msgs := make([]kafkago.Message, 0, len(fixtures))
	for i, tc := range fixtures {
		msgs = append(msgs, kafkago.Message{Key: []byte(tc.Name), Value: tc.Request})
		if tc.Expected.Error == "" {
			req, err := tc.SiteRequest()
			require.NoError(t, err)
			expectedBySite[req.SiteID] = i
		}
	}

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newTransformer(), writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make([]estimateMessage, 0, len(expectedBySite))
	for len(received) < len(expectedBySite) {
		received = append(received, readEstimate(ctx, t, consumer))
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	for _, msg := range received {
		i, ok := expectedBySite[msg.Estimate.SiteID]
		require.True(t, ok, "unexpected site %q on sink topic", msg.Estimate.SiteID)
		assert.Empty(t, fixtures[i].Expected.Check(msg.Estimate, nil), fixtures[i].Name)
		assert.Equal(t, msg.Estimate.ID, msg.Key)
		delete(expectedBySite, msg.Estimate.SiteID)
	}
	assert.Empty(t, expectedBySite, "every valid fixture should be published once")
}

// TestPipelineTransformError verifies that poison messages (bad JSON and an
// invalid curve number) are skipped and the pipeline keeps going.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	fixtures := loadFixtures(t)
	valid := fixtures[0]
	invalid := fixtures[len(fixtures)-1]
	require.NotEmpty(t, invalid.Expected.Error, "last fixture should be the invalid override")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("invalid-cn"), Value: invalid.Request},
		kafkago.Message{Key: []byte("good"), Value: valid.Request},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newTransformer(), writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	msg := readEstimate(ctx, t, consumer)
	assert.Equal(t, "site-sandy-flat", msg.Estimate.SiteID)
	assert.Empty(t, valid.Expected.Check(msg.Estimate, nil))

	// No second message: both poison pills were skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}

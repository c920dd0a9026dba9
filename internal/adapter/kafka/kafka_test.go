package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("site-42"),
		Value:     []byte(`{"site_id":"site-42"}`),
		Topic:     "runoff-site-requests",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("field-survey")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("site-42"), raw.Key)
	assert.JSONEq(t, `{"site_id":"site-42"}`, string(raw.Value))
	assert.Equal(t, "runoff-site-requests", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "field-survey", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestToMessage(t *testing.T) {
	processedAt := time.Date(2024, 10, 1, 6, 0, 0, 0, time.UTC)
	est := domain.SiteEstimate{
		ID:          "forecast-0123456789abcdef",
		SiteID:      "site-42",
		Mode:        domain.ModeForecast,
		ProcessedAt: processedAt,
	}
	out, err := domain.SerializeSiteEstimate(est)
	require.NoError(t, err)

	msg := toMessage(out)

	assert.Equal(t, []byte("forecast-0123456789abcdef"), msg.Key)
	assert.Contains(t, string(msg.Value), `"site_id":"site-42"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "mode", msg.Headers[0].Key)
	assert.Equal(t, []byte("forecast"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(processedAt.Format(time.RFC3339)), msg.Headers[1].Value)
	assert.Equal(t, "site_id", msg.Headers[2].Key)
	assert.Equal(t, []byte("site-42"), msg.Headers[2].Value)
}

func TestToMessage_NoHeaders(t *testing.T) {
	msg := toMessage(domain.OutputEvent{Key: []byte("k"), Value: []byte("{}")})
	assert.Empty(t, msg.Headers)
	assert.Equal(t, []byte("{}"), msg.Value)
}

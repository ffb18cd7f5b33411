package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), nil)
	assert.Error(t, err)
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	rec := toRecord(&Message{
		Topic:     "notifications",
		Key:       []byte("k"),
		Value:     []byte(`{"a":1}`),
		Headers:   map[string]string{"template": "event_reminder"},
		Timestamp: ts,
	})

	assert.Equal(t, "notifications", rec.Topic)
	assert.Equal(t, []byte("k"), rec.Key)
	assert.Equal(t, ts, rec.Timestamp)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "template", rec.Headers[0].Key)
	assert.Equal(t, []byte("event_reminder"), rec.Headers[0].Value)
}

func TestProducer_ProduceNil(t *testing.T) {
	p := &Producer{}
	assert.Error(t, p.Produce(context.Background(), nil))
}

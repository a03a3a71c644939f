package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	batches [][]kafka.Message
	failAt  int
	closed  bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failAt > 0 && len(w.batches)+1 == w.failAt {
		return errors.New("broker unavailable")
	}
	w.batches = append(w.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func events(n int) []Event {
	out := make([]Event, n)
	for i := range out {
		out[i] = Event{Key: string(rune('a' + i)), Value: map[string]int{"i": i}}
	}
	return out
}

func TestPublishBatchSplitsIntoBatches(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "t", 2, 0)

	require.NoError(t, p.PublishBatch(context.Background(), events(5)))
	require.Len(t, w.batches, 3)
	require.Len(t, w.batches[0], 2)
	require.Len(t, w.batches[2], 1)

	require.Equal(t, "a", string(w.batches[0][0].Key))
	var v map[string]int
	require.NoError(t, json.Unmarshal(w.batches[2][0].Value, &v))
	require.Equal(t, 4, v["i"])

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishBatchStopsAtFailedBatch(t *testing.T) {
	w := &recordingWriter{failAt: 2}
	p := NewProducerWithWriter(w, "t", 2, 0)

	err := p.PublishBatch(context.Background(), events(6))
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 of 6 messages")
	require.Len(t, w.batches, 1)
}

func TestPublishRejectsUnmarshalableValue(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "t", 10, 0)
	err := p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	require.Error(t, err)
	require.Empty(t, w.batches)
}

func TestPublishHonoursRateLimit(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "t", 1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := p.PublishBatch(ctx, events(3))
	require.Error(t, err)
	require.Len(t, w.batches, 1)
}

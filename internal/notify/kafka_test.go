package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestNotifier() (*KafkaNotifier, map[string]*recordingWriter) {
	n := NewKafkaNotifier(Config{Brokers: []string{"localhost:9092"}}, nil)
	created := make(map[string]*recordingWriter)
	n.newWriter = func(topic string) messageWriter {
		w := &recordingWriter{}
		created[topic] = w
		return w
	}
	return n, created
}

func TestKafkaNotifier_Send(t *testing.T) {
	n, writers := newTestNotifier()
	payload := map[string]any{"status": "APPROVED", "stan": "000001"}

	require.NoError(t, n.Send(context.Background(), "payment.response", "tx-1", payload))
	require.NoError(t, n.Send(context.Background(), "payment.response", "tx-2", payload))

	require.Len(t, writers, 1)
	w := writers["payment.response"]
	require.Len(t, w.messages, 2)
	assert.Equal(t, "tx-1", string(w.messages[0].Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, "APPROVED", decoded["status"])
	assert.Equal(t, "content-type", w.messages[0].Headers[0].Key)
}

func TestKafkaNotifier_EmptyTopicIsNoop(t *testing.T) {
	n, writers := newTestNotifier()
	require.NoError(t, n.Send(context.Background(), "", "tx-1", struct{}{}))
	assert.Empty(t, writers)
}

func TestKafkaNotifier_Errors(t *testing.T) {
	n, writers := newTestNotifier()

	err := n.Send(context.Background(), "t", "k", make(chan int))
	assert.ErrorContains(t, err, "encode payload")

	require.NoError(t, n.Send(context.Background(), "t", "k", 1))
	broker := errors.New("leader not available")
	writers["t"].err = broker
	assert.ErrorIs(t, n.Send(context.Background(), "t", "k", 1), broker)
}

func TestKafkaNotifier_Close(t *testing.T) {
	n, writers := newTestNotifier()
	require.NoError(t, n.Send(context.Background(), "a", "k", 1))
	require.NoError(t, n.Send(context.Background(), "b", "k", 1))

	require.NoError(t, n.Close())
	assert.True(t, writers["a"].closed)
	assert.True(t, writers["b"].closed)
	assert.Empty(t, n.writers)
}

func TestNewKafkaNotifier_Defaults(t *testing.T) {
	n := NewKafkaNotifier(Config{Brokers: []string{"kafka:9092"}}, nil)
	assert.Equal(t, []string{"kafka:9092"}, n.brokers)
	assert.Equal(t, 10*time.Millisecond, n.batch)

	w, ok := n.kafkaWriter("payments").(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "payments", w.Topic)
}

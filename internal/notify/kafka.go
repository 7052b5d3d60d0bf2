// Package notify publishes payment results to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Config holds Kafka connection parameters.
type Config struct {
	Brokers      []string
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier encodes payloads as JSON and writes them to one writer per
// topic, created on first use.
type KafkaNotifier struct {
	mu        sync.Mutex
	writers   map[string]messageWriter
	brokers   []string
	batch     time.Duration
	newWriter func(topic string) messageWriter
	logger    *slog.Logger
}

func NewKafkaNotifier(cfg Config, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &KafkaNotifier{
		writers: make(map[string]messageWriter),
		brokers: cfg.Brokers,
		batch:   cfg.BatchTimeout,
		logger:  logger,
	}
	if n.batch <= 0 {
		n.batch = 10 * time.Millisecond
	}
	n.newWriter = n.kafkaWriter
	return n
}

// Send publishes payload under key. An empty topic is a no-op so a
// deployment without a topic configured keeps working.
func (n *KafkaNotifier) Send(ctx context.Context, topic, key string, payload any) error {
	if topic == "" {
		return nil
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode payload for %s: %w", topic, err)
	}

	w := n.writer(topic)
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", topic, err)
	}
	n.logger.DebugContext(ctx, "payment result published", slog.String("topic", topic), slog.String("key", key))
	return nil
}

// Close closes all writers.
func (n *KafkaNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var firstErr error
	for topic, w := range n.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify: closing writer for topic %s: %w", topic, err)
		}
	}
	n.writers = make(map[string]messageWriter)
	return firstErr
}

func (n *KafkaNotifier) writer(topic string) messageWriter {
	n.mu.Lock()
	defer n.mu.Unlock()

	if w, ok := n.writers[topic]; ok {
		return w
	}
	w := n.newWriter(topic)
	n.writers[topic] = w
	return w
}

func (n *KafkaNotifier) kafkaWriter(topic string) messageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(n.brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           n.batch,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records as JSON, keyed by mint so each token's events
// stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	logger *logrus.Entry
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, logger *logrus.Entry) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink: topic is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithFields(logrus.Fields{"component": "kafka-sink", "topic": topic})

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    50,
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: 1,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf(msg, args...)
		}),
	})
	return newKafkaSink(w, logger), nil
}

func newKafkaSink(w messageWriter, logger *logrus.Entry) *KafkaSink {
	return &KafkaSink{writer: w, logger: logger}
}

// Write implements Sink.
func (s *KafkaSink) Write(ctx context.Context, r Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Mint),
		Value: value,
		Time:  r.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "topic", Value: []byte(r.Topic)},
			{Key: "event", Value: []byte(r.Event)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

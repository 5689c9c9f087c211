// Package kafka publishes fault events to a Kafka topic that acts as a
// dead-letter queue for verdict units.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/notify"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier writes one message per fault, keyed by unit ID.
type Notifier struct {
	writer messageWriter
}

var _ notify.Notifier = (*Notifier)(nil)

// New creates a notifier for the given brokers and topic.
func New(brokers []string, topic string) (*Notifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return &Notifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: false,
		},
	}, nil
}

// NewWithWriter builds a notifier using a custom writer (tests).
func NewWithWriter(writer messageWriter) *Notifier {
	return &Notifier{writer: writer}
}

// NotifyFaults publishes faults in a single batch.
func (n *Notifier) NotifyFaults(ctx context.Context, runID string, faults []crawler.FaultRecord) error {
	if len(faults) == 0 {
		return nil
	}
	events := notify.Events(runID, faults)
	msgs := make([]kafka.Message, 0, len(events))
	now := time.Now().UTC()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal fault event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.UnitID),
			Value: payload,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(runID)},
				{Key: "kind", Value: []byte(ev.Kind)},
			},
		})
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d fault events: %w", len(msgs), err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes notifications as JSON records keyed by Message.Key.
type KafkaNotifier struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaNotifier wraps a kafka writer.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, now: time.Now}
}

type event struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination,omitempty"`
	Key         string            `json:"key,omitempty"`
	Body        string            `json:"body,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Send encodes and writes one record.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	occurred := message.OccurredAt
	if occurred.IsZero() {
		occurred = n.now().UTC()
	}
	payload, err := json.Marshal(event{
		Kind:        message.Kind,
		Destination: message.Destination,
		Key:         message.Key,
		Body:        message.Body,
		Attributes:  message.Attributes,
		OccurredAt:  occurred,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := kafka.Message{
		Key:     []byte(message.Key),
		Value:   payload,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(message.Kind)}},
		Time:    occurred,
	}
	if err := n.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("publish %s: %w", message.Kind, err)
	}
	return nil
}

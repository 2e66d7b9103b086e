package infra

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter builds a writer for the event topic. Writes are synchronous and
// require acknowledgement from all in-sync replicas.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}, nil
}

// settlement-gateway/internal/events/kafka.go
package events

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
)

// Bus publishes audit events to a Kafka topic.
type Bus struct {
	writer *kafka.Writer
}

func NewBus(brokers []string, topic string) *Bus {
	return &Bus{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	payload, err := sonic.Marshal(e)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Module),
		Value: payload,
	})
}

func (b *Bus) Close() error { return b.writer.Close() }

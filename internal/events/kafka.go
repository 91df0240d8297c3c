package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka writes events to a topic keyed by order id, so every event of one
// order lands on the same partition in order.
type Kafka struct {
	log      *zap.Logger
	producer Producer
	topic    string
	now      func() time.Time
}

func NewKafka(log *zap.Logger, producer Producer, topic string) *Kafka {
	return &Kafka{log: log, producer: producer, topic: topic, now: time.Now}
}

// NewWriter builds the writer used in production.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = k.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(ev.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.producer.WriteMessages(ctx, msg); err != nil {
		k.log.Error("event publish failed", zap.String("type", string(ev.Type)), zap.String("order_id", ev.OrderID), zap.Error(err))
		return err
	}
	k.log.Debug("event published", zap.String("type", string(ev.Type)), zap.String("order_id", ev.OrderID))
	return nil
}

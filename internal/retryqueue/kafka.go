package retryqueue

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka publishes entries to the retry topic. Messages are keyed by shop
// so one shop's entries stay on one partition in enqueue order.
type Kafka struct {
	w writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: false,
	}}
}

func (k *Kafka) Enqueue(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.Order.ShopID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "reason", Value: []byte(e.Reason)},
			{Key: "attempts", Value: []byte(fmt.Sprint(e.Attempts))},
		},
	})
	if err != nil {
		return fmt.Errorf("write retry entry: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

// Decode parses a message written by Enqueue.
func Decode(msg kafkago.Message) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return Entry{}, fmt.Errorf("decode retry entry: %w", err)
	}
	return e, nil
}

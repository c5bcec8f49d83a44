package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TransferEvent is published after every audited transfer attempt so
// downstream consumers (billing, analytics) can react without polling the
// dashboard's database.
type TransferEvent struct {
	ID               string    `json:"id"`
	SourceAccountSID string    `json:"source_account_sid"`
	TargetAccountSID string    `json:"target_account_sid"`
	PhoneNumberSID   string    `json:"phone_number_sid"`
	PhoneNumber      string    `json:"phone_number"`
	Status           string    `json:"status"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// KafkaPublisher is a thin wrapper around a segmentio/kafka-go Writer.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev TransferEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.PhoneNumberSID),
		Value: b,
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

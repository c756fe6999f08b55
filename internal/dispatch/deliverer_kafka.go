package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"diario/internal/monitor/models"
)

// wireEvent is the topic schema for downstream notification channels
// (portal, email, WhatsApp workers). Consumers dedupe on identity_id plus
// natural_key.
type wireEvent struct {
	IdentityID string                    `json:"identity_id"`
	NaturalKey string                    `json:"natural_key"`
	Payload    models.PublicationPayload `json:"payload"`
	EmittedAt  time.Time                 `json:"emitted_at"`
}

// KafkaDeliverer publishes publication events to a Kafka topic. Messages
// are keyed by identity so one practitioner's notifications stay ordered on
// a single partition.
type KafkaDeliverer struct {
	client *kgo.Client
	topic  string
}

// NewKafkaDeliverer connects to the brokers and ensures the topic exists.
func NewKafkaDeliverer(ctx context.Context, brokers []string, topic string) (*KafkaDeliverer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 3, 1, nil, topic); err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}

	return &KafkaDeliverer{client: client, topic: topic}, nil
}

func (d *KafkaDeliverer) Deliver(ctx context.Context, event models.PublicationEvent) error {
	value, err := json.Marshal(wireEvent{
		IdentityID: event.IdentityID.String(),
		NaturalKey: event.NaturalKey,
		Payload:    event.Payload,
		EmittedAt:  event.EmittedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(event.IdentityID.String()),
		Value: value,
	}
	if err := d.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

func (d *KafkaDeliverer) Close() {
	d.client.Close()
}

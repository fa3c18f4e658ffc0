package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaPublisher emits classified observations to Kafka for downstream
// consumers (alerting, warehousing). Optional; the serving path never blocks
// on it.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates the Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishObservation(ctx context.Context, snap *models.Snapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(snap.Kind), map[string]interface{}{
		"indicator": string(snap.Kind),
		"value":     snap.Value,
		"status":    string(snap.Status),
		"source":    snap.Source,
		"t":         snap.FetchedAt.Unix(),
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

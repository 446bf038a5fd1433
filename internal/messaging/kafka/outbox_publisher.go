package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет сообщение с ключом id заказа, чтобы сохранить порядок его событий.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope := NewEnvelope(event, time.Now().UTC())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

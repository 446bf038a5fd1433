package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// Exchange для событий маркетплейса.
const (
	ExchangeName = "medistore.events"
	ExchangeType = "topic"
	// DeadLetterPrefix добавляется к routing key сообщений, ушедших в DLQ.
	DeadLetterPrefix = "dlq."
)

// Заголовки AMQP-сообщения.
const (
	HeaderAggregateType = "x-aggregate-type"
	HeaderAggregateID   = "x-aggregate-id"
	HeaderAttempts      = "x-attempt-count"
)

const (
	dialAttempts = 5
	dialBackoff  = 2 * time.Second
)

// Channel — часть *amqp.Channel, нужная паблишеру.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Connect подключается к брокеру и объявляет durable topic exchange.
// Пока контейнер брокера поднимается, подключение повторяется.
func Connect(ctx context.Context, url string, logger *log.Entry) (*amqp.Connection, *amqp.Channel, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("failed to connect to rabbitmq")
		if attempt == dialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

// Publisher публикует outbox-сообщения в topic exchange с routing key по типу события.
type Publisher struct {
	ch       Channel
	exchange string
	prefix   string
}

// NewPublisher создаёт паблишер основного потока событий.
func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch, exchange: ExchangeName}
}

// NewDeadLetterPublisher публикует в тот же exchange с префиксом dlq.
func NewDeadLetterPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch, exchange: ExchangeName, prefix: DeadLetterPrefix}
}

// RoutingKey возвращает ключ маршрутизации сообщения, например order.created или dlq.order.created.
func (p *Publisher) RoutingKey(msg domain.OutboxMessage) string {
	return p.prefix + msg.EventType
}

// Publish отправляет payload как есть; метаданные outbox уходят в свойства и заголовки.
func (p *Publisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.ch == nil {
		return fmt.Errorf("rabbitmq publisher is not initialized")
	}

	err := p.ch.PublishWithContext(ctx,
		p.exchange,        // exchange
		p.RoutingKey(msg), // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         msg.EventType,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				HeaderAggregateType: msg.AggregateType,
				HeaderAggregateID:   msg.AggregateID,
				HeaderAttempts:      int32(msg.AttemptCount),
			},
			Body: msg.Payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s to rabbitmq: %w", msg.ID, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*Publisher)(nil)

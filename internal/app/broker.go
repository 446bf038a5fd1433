package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/medistore/internal/messaging/rabbitmq"
)

// brokerDependencies — паблишеры outbox relay.
type brokerDependencies struct {
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	closers      []func() error
}

// initBroker подключает брокер. Для BrokerNone паблишеры остаются nil и relay не запускается;
// сообщения копятся в outbox до подключения брокера.
func initBroker(ctx context.Context, cfg Config, logger *log.Entry) (*brokerDependencies, error) {
	deps := &brokerDependencies{}

	switch cfg.Broker {
	case BrokerNone, "":
		logger.Warn("брокер не настроен, outbox relay отключён")

	case BrokerKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, "medistore", logger)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, producer.Close)
		deps.publisher = kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
		deps.dlqPublisher = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

	case BrokerRabbitMQ:
		conn, ch, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, conn.Close, ch.Close)
		deps.publisher = rabbitmq.NewPublisher(ch)
		deps.dlqPublisher = rabbitmq.NewDeadLetterPublisher(ch)
		logger.WithField("exchange", rabbitmq.ExchangeName).Info("rabbitmq publisher initialized")

	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Broker)
	}

	return deps, nil
}

// close закрывает соединения с брокером в обратном порядке.
func (d *brokerDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close broker connection")
		}
	}
	d.closers = nil
}

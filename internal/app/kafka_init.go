package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderstock/internal/service/outbox"
)

// eventPublishers — куда outbox-воркер доставляет события и куда уходят недоставленные.
type eventPublishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initKafkaProducer создаёт producer, если брокеры заданы.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(cfg KafkaConfig, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, cfg.ClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initEventPublishers выбирает транспорт событий. Без Kafka или при её недоступности
// события пишутся в лог, чтобы outbox не копил backlog.
func initEventPublishers(cfg KafkaConfig, logger *log.Entry) eventPublishers {
	producer, err := initKafkaProducer(cfg, logger)
	if err != nil || producer == nil {
		if err != nil {
			logger.Warn("continuing without kafka, domain events go to the log")
		}
		return eventPublishers{events: outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher"))}
	}

	topics := kafka.Topics{Item: cfg.ItemTopic, Order: cfg.OrderTopic, DLQ: cfg.DLQTopic}
	return eventPublishers{
		events:   kafka.NewOutboxPublisher(producer, topics),
		dlq:      kafka.NewDLQPublisher(producer, topics),
		producer: producer,
	}
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

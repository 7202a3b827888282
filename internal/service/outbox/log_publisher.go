package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// LogPublisher пишет сообщения в лог. Используется, когда Kafka отключена.
type LogPublisher struct {
	logger *log.Entry
}

func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"aggregate":    msg.AggregateType,
		"aggregate_id": msg.AggregateID,
		"event_type":   msg.EventType,
		"payload":      string(msg.Payload),
	}).Info("domain event")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)

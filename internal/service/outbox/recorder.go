package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// EventRecorder принимает события командного конвейера: кладёт их в outbox
// для доставки воркером и дописывает в журнал агрегата.
type EventRecorder struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewEventRecorder создаёт публикатор событий поверх outbox. timeline может быть nil.
func NewEventRecorder(outbox domain.OutboxRepository, timeline domain.TimelineRepository, logger *log.Entry) *EventRecorder {
	if logger == nil {
		logger = log.WithField("component", "outbox-recorder")
	}
	return &EventRecorder{outbox: outbox, timeline: timeline, logger: logger}
}

// Publish сохраняет события в порядке записи. Ошибка на любом событии прерывает
// пакет; уже сохранённые сообщения остаются в outbox.
func (r *EventRecorder) Publish(ctx context.Context, events []domain.Event) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event.EventType(), err)
		}

		msg, err := r.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: event.AggregateType(),
			AggregateID:   event.AggregateID(),
			EventType:     event.EventType(),
			Payload:       payload,
			CreatedAt:     event.OccurredAt(),
		})
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", event.EventType(), err)
		}

		if r.timeline != nil {
			if err := r.timeline.Append(ctx, domain.TimelineEvent{
				AggregateType: event.AggregateType(),
				AggregateID:   event.AggregateID(),
				Type:          event.EventType(),
				Payload:       payload,
				Occurred:      event.OccurredAt(),
			}); err != nil {
				return fmt.Errorf("append %s to timeline: %w", event.EventType(), err)
			}
		}

		r.logger.WithFields(log.Fields{
			"outbox_id":    msg.ID,
			"aggregate_id": msg.AggregateID,
			"event_type":   msg.EventType,
		}).Debug("domain event recorded")
	}
	return nil
}

var _ domain.EventPublisher = (*EventRecorder)(nil)

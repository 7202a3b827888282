package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// Envelope — тело сообщения с доменным событием.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxPublisher публикует сообщения outbox в топик их агрегата.
// Ключ сообщения — идентификатор агрегата, так что события одного товара
// или заказа попадают в одну партицию и читаются по порядку.
type OutboxPublisher struct {
	producer *Producer
	route    func(aggregateType string) string
	// origin задан только у DLQ-publisher: топик, куда сообщение шло изначально.
	origin func(aggregateType string) string
}

// NewOutboxPublisher создаёт publisher, выбирающий топик по типу агрегата.
func NewOutboxPublisher(producer *Producer, topics Topics) *OutboxPublisher {
	return &OutboxPublisher{producer: producer, route: topics.withDefaults().For}
}

// NewDLQPublisher отправляет все сообщения в topics.DLQ. Payload уже содержит конверт с ошибкой,
// а заголовок HeaderOriginalTopic хранит топик агрегата для повторной отправки.
func NewDLQPublisher(producer *Producer, topics Topics) *OutboxPublisher {
	topics = topics.withDefaults()
	return &OutboxPublisher{
		producer: producer,
		route:    func(string) string { return topics.DLQ },
		origin:   topics.For,
	}
}

func (p *OutboxPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	value, err := json.Marshal(Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		OccurredAt:    msg.CreatedAt,
		Payload:       rawPayload(msg.Payload),
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", msg.ID, err)
	}

	headers := map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderOutboxID:      msg.ID,
	}
	if p.origin != nil {
		headers[HeaderOriginalTopic] = p.origin(msg.AggregateType)
	}
	return p.producer.Send(ctx, p.route(msg.AggregateType), key, value, headers)
}

// rawPayload встраивает JSON как есть, а прочие байты передаёт строкой.
func rawPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)

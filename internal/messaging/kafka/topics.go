package kafka

import "github.com/vladislavdragonenkov/orderstock/internal/domain"

// Топики по умолчанию.
const (
	DefaultItemTopic  = "orderstock.item.events"
	DefaultOrderTopic = "orderstock.order.events"
	DefaultDLQTopic   = "orderstock.dlq"
)

// Заголовки сообщений, по которым потребители фильтруют события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
)

// Topics — маршрутизация событий по типу агрегата.
type Topics struct {
	Item  string
	Order string
	DLQ   string
}

// DefaultTopics возвращает топики по умолчанию.
func DefaultTopics() Topics {
	return Topics{Item: DefaultItemTopic, Order: DefaultOrderTopic, DLQ: DefaultDLQTopic}
}

// For возвращает топик для типа агрегата. Неизвестные типы уходят в DLQ.
func (t Topics) For(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateItem:
		return t.Item
	case domain.AggregateOrder:
		return t.Order
	default:
		return t.DLQ
	}
}

func (t Topics) withDefaults() Topics {
	d := DefaultTopics()
	if t.Item == "" {
		t.Item = d.Item
	}
	if t.Order == "" {
		t.Order = d.Order
	}
	if t.DLQ == "" {
		t.DLQ = d.DLQ
	}
	return t
}

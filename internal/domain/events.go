package domain

import "time"

const (
	// Типы агрегатов в outbox, timeline и ошибках.
	AggregateItem  = "item"
	AggregateOrder = "order"
)

// Event — доменное событие, накопленное агрегатом до сохранения.
type Event interface {
	EventType() string
	AggregateType() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventMeta — общая часть всех событий.
type EventMeta struct {
	ID   string    `json:"aggregate_id"`
	Time time.Time `json:"occurred_at"`
}

func (m EventMeta) AggregateID() string { return m.ID }
func (m EventMeta) OccurredAt() time.Time { return m.Time }

type itemEvent struct{ EventMeta }

func (itemEvent) AggregateType() string { return AggregateItem }

type orderEvent struct{ EventMeta }

func (orderEvent) AggregateType() string { return AggregateOrder }

func newItemEvent(id string, at time.Time) itemEvent {
	return itemEvent{EventMeta{ID: id, Time: at}}
}

func newOrderEvent(id string, at time.Time) orderEvent {
	return orderEvent{EventMeta{ID: id, Time: at}}
}

// ItemCreated фиксирует заведение товара в каталог.
type ItemCreated struct {
	itemEvent
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Price     Money  `json:"price"`
	Currency  string `json:"currency"`
	Available int    `json:"available"`
}

func (ItemCreated) EventType() string { return "inventory.item_created" }

// ItemDetailsUpdated фиксирует смену названия, описания или категории.
type ItemDetailsUpdated struct {
	itemEvent
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (ItemDetailsUpdated) EventType() string { return "inventory.item_details_updated" }

// ItemPriceChanged хранит старую и новую цену.
type ItemPriceChanged struct {
	itemEvent
	PreviousPrice Money  `json:"previous_price"`
	Price         Money  `json:"price"`
	Currency      string `json:"currency"`
}

func (ItemPriceChanged) EventType() string { return "inventory.item_price_changed" }

// StockAdjusted хранит свободный остаток до и после инвентаризации.
type StockAdjusted struct {
	itemEvent
	PreviousAvailable int `json:"previous_available"`
	NewAvailable      int `json:"new_available"`
	Reserved          int `json:"reserved"`
}

func (StockAdjusted) EventType() string { return "inventory.stock_adjusted" }

// StockMovement — количество и остатки после операции резерва.
type StockMovement struct {
	Quantity  int `json:"quantity"`
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
}

// StockReserved: единицы перенесены в резерв.
type StockReserved struct {
	itemEvent
	StockMovement
}

func (StockReserved) EventType() string { return "inventory.stock_reserved" }

// StockReleased: резерв снят.
type StockReleased struct {
	itemEvent
	StockMovement
}

func (StockReleased) EventType() string { return "inventory.stock_released" }

// StockCommitted: резерв списан при отгрузке.
type StockCommitted struct {
	itemEvent
	StockMovement
}

func (StockCommitted) EventType() string { return "inventory.stock_committed" }

type ItemDeactivated struct{ itemEvent }

func (ItemDeactivated) EventType() string { return "inventory.item_deactivated" }

type ItemActivated struct{ itemEvent }

func (ItemActivated) EventType() string { return "inventory.item_activated" }

// OrderCreated записывается при приёме заказа в статусе pending.
type OrderCreated struct {
	orderEvent
	CustomerID string `json:"customer_id"`
	Total      Money  `json:"total"`
	Currency   string `json:"currency"`
	Lines      int    `json:"lines"`
}

func (OrderCreated) EventType() string { return "order.created" }

type OrderValidated struct {
	orderEvent
	Total Money `json:"total"`
}

func (OrderValidated) EventType() string { return "order.validated" }

type OrderPaymentStarted struct {
	orderEvent
	Amount   Money  `json:"amount"`
	Currency string `json:"currency"`
}

func (OrderPaymentStarted) EventType() string { return "order.payment_started" }

// OrderPaid содержит списанную сумму и референс платежа.
type OrderPaid struct {
	orderEvent
	Amount           Money  `json:"amount"`
	Currency         string `json:"currency"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

func (OrderPaid) EventType() string { return "order.paid" }

// OrderShipped содержит клиента, которому ушла посылка.
type OrderShipped struct {
	orderEvent
	CustomerID     string `json:"customer_id"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

func (OrderShipped) EventType() string { return "order.shipped" }

type OrderCancelled struct {
	orderEvent
	Reason         string      `json:"reason"`
	PreviousStatus OrderStatus `json:"previous_status"`
}

func (OrderCancelled) EventType() string { return "order.cancelled" }

type OrderDeleted struct {
	orderEvent
	PreviousStatus OrderStatus `json:"previous_status"`
}

func (OrderDeleted) EventType() string { return "order.deleted" }

// eventLog хранит события агрегата. Читает и очищает его только командный конвейер.
type eventLog struct {
	pending []Event
}

func (l *eventLog) record(e Event) {
	l.pending = append(l.pending, e)
}

// PendingEvents возвращает копию накопленных событий в порядке записи.
func (l *eventLog) PendingEvents() []Event {
	out := make([]Event, len(l.pending))
	copy(out, l.pending)
	return out
}

// ClearEvents очищает буфер после успешной публикации.
func (l *eventLog) ClearEvents() {
	l.pending = nil
}

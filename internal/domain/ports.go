package domain

import (
	"context"
	"time"
)

const (
	// DefaultPageLimit и MaxPageLimit ограничивают выборки запросов.
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Page задаёт окно выборки.
type Page struct {
	Limit  int
	Offset int
}

// Normalize подставляет лимит по умолчанию и обрезает слишком большие значения.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ItemFilter — параметры выборки товаров.
type ItemFilter struct {
	Category   string
	ActiveOnly bool
	Page       Page
}

// ItemRepository хранит товары. Get возвращает независимую копию агрегата.
type ItemRepository interface {
	// Create сохраняет новый товар; SKU должен быть уникальным.
	Create(ctx context.Context, item *Item) error
	// Get возвращает товар или *NotFoundError.
	Get(ctx context.Context, id string) (*Item, error)
	GetBySKU(ctx context.Context, sku SKU) (*Item, error)
	// Save сохраняет товар, если версия в хранилище равна expectedVersion,
	// иначе возвращает *ConcurrencyConflictError.
	Save(ctx context.Context, item *Item, expectedVersion int64) error
	List(ctx context.Context, filter ItemFilter) ([]ItemSnapshot, error)
}

// OrderRepository хранит заказы с теми же гарантиями, что и ItemRepository.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Save(ctx context.Context, order *Order, expectedVersion int64) error
	// ListByCustomer не возвращает удалённые заказы.
	ListByCustomer(ctx context.Context, customerID string, page Page) ([]OrderSnapshot, error)
	ListByStatus(ctx context.Context, status OrderStatus, page Page) ([]OrderSnapshot, error)
	List(ctx context.Context, page Page) ([]OrderSnapshot, error)
}

// EventPublisher получает события агрегата после успешного сохранения, в порядке записи.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event) error
}

// Transactor выполняет fn атомарно. Репозитории, получившие ctx из fn, пишут в ту же
// транзакцию, поэтому сохранение агрегата и запись его событий в outbox фиксируются
// или откатываются вместе. Вложенный вызов присоединяется к внешней транзакции.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentGateway списывает оплату по заказу.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (PaymentReceipt, error)
}

// ShippingCarrier передаёт заказ в доставку.
type ShippingCarrier interface {
	Dispatch(ctx context.Context, orderID, customerID string) (Shipment, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит историю событий агрегатов.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, aggregateType, aggregateID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

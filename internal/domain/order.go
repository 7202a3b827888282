package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ждёт проверки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusValidated: позиции и сумма проверены.
	OrderStatusValidated OrderStatus = "validated"
	// OrderStatusPaymentProcessing: платёж инициирован.
	OrderStatusPaymentProcessing OrderStatus = "payment_processing"
	// OrderStatusPaid: оплата подтверждена.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered: заказ получен клиентом; финальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён до доставки.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusDeleted: административное мягкое удаление.
	OrderStatusDeleted OrderStatus = "deleted"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusValidated, OrderStatusPaymentProcessing, OrderStatusPaid,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusDeleted:
		return true
	default:
		return false
	}
}

const maxCustomerIDLength = 100

// Причины отмены, которые выставляет сам агрегат.
const (
	CancelReasonNoLines   = "order has no lines"
	CancelReasonZeroTotal = "order total is zero"
)

// OrderLine — позиция заказа.
type OrderLine struct {
	ID        string
	ProductID string
	Quantity  int
	UnitPrice Money
}

// Subtotal возвращает цену позиции с учётом количества.
func (l OrderLine) Subtotal() Money {
	total, _ := l.UnitPrice.Multiply(l.Quantity)
	return total
}

// Order — заказ клиента и его позиции.
type Order struct {
	eventLog

	id                 string
	customerID         string
	orderDate          time.Time
	status             OrderStatus
	currency           string
	total              Money
	lines              []OrderLine
	cancellationReason string
	createdAt          time.Time
	updatedAt          time.Time
	version            int64
}

// NewOrderLine описывает позицию во входных данных NewOrder.
type NewOrderLine struct {
	ID        string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// NewOrderParams содержит данные для создания заказа.
type NewOrderParams struct {
	ID         string
	CustomerID string
	Currency   string
	Lines      []NewOrderLine
}

// NewOrder создаёт заказ в статусе pending с версией 1 и событием OrderCreated.
func NewOrder(p NewOrderParams, now time.Time) (*Order, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, NewValidationError("id", p.ID, "is required")
	}
	customerID := strings.TrimSpace(p.CustomerID)
	switch n := utf8.RuneCountInString(customerID); {
	case n == 0:
		return nil, NewValidationError("customer_id", p.CustomerID, "is required")
	case n > maxCustomerIDLength:
		return nil, NewValidationError("customer_id", p.CustomerID, "must be at most 100 characters")
	}
	currency, err := NormalizeCurrency(p.Currency)
	if err != nil {
		return nil, err
	}
	if len(p.Lines) == 0 {
		return nil, NewValidationError("lines", len(p.Lines), "order must contain at least one line")
	}

	lines := make([]OrderLine, 0, len(p.Lines))
	for _, in := range p.Lines {
		line, err := newOrderLine(in)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	order := &Order{
		id:         p.ID,
		customerID: customerID,
		orderDate:  now,
		status:     OrderStatusPending,
		currency:   currency,
		total:      sumLines(lines),
		lines:      lines,
		createdAt:  now,
		updatedAt:  now,
		version:    1,
	}
	order.record(OrderCreated{
		orderEvent: newOrderEvent(order.id, now),
		CustomerID: customerID,
		Total:      order.total,
		Currency:   currency,
		Lines:      len(lines),
	})
	return order, nil
}

func newOrderLine(in NewOrderLine) (OrderLine, error) {
	if strings.TrimSpace(in.ID) == "" {
		return OrderLine{}, NewValidationError("lines.id", in.ID, "is required")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return OrderLine{}, NewValidationError("lines.product_id", in.ProductID, "is required")
	}
	if in.Quantity <= 0 {
		return OrderLine{}, NewValidationError("lines.quantity", in.Quantity, "must be greater than zero")
	}
	price, err := NewMoney(in.UnitPrice)
	if err != nil {
		return OrderLine{}, err
	}
	if !price.IsPositive() {
		return OrderLine{}, NewValidationError("lines.unit_price", in.UnitPrice.String(), "must be greater than zero")
	}
	return OrderLine{ID: in.ID, ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: price}, nil
}

func sumLines(lines []OrderLine) Money {
	total := Zero()
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func (o *Order) ID() string { return o.id }
func (o *Order) CustomerID() string { return o.customerID }
func (o *Order) OrderDate() time.Time { return o.orderDate }
func (o *Order) Status() OrderStatus { return o.status }
func (o *Order) Currency() string { return o.currency }
func (o *Order) Total() Money { return o.total }
func (o *Order) CancellationReason() string { return o.cancellationReason }
func (o *Order) CreatedAt() time.Time { return o.createdAt }
func (o *Order) UpdatedAt() time.Time { return o.updatedAt }
func (o *Order) Version() int64 { return o.version }

// Lines возвращает копию позиций.
func (o *Order) Lines() []OrderLine {
	out := make([]OrderLine, len(o.lines))
	copy(out, o.lines)
	return out
}

// Для каждого статуса основного пути допустим единственный предшественник.
var predecessors = map[OrderStatus]OrderStatus{
	OrderStatusValidated:         OrderStatusPending,
	OrderStatusPaymentProcessing: OrderStatusValidated,
	OrderStatusPaid:              OrderStatusPaymentProcessing,
	OrderStatusShipped:           OrderStatusPaid,
	OrderStatusDelivered:         OrderStatusShipped,
}

// CheckTransition проверяет переход по основному пути, не меняя заказ.
// Нужен командам, которые обращаются к внешним системам до перехода.
func (o *Order) CheckTransition(to OrderStatus) error {
	if from, ok := predecessors[to]; !ok || o.status != from {
		return &InvalidTransitionError{OrderID: o.id, From: o.status, To: to}
	}
	return nil
}

func (o *Order) advance(to OrderStatus, now time.Time) error {
	if err := o.CheckTransition(to); err != nil {
		return err
	}
	o.status = to
	o.updatedAt = now
	o.version++
	return nil
}

// Validate повторно проверяет позиции и сумму. Пустой заказ или заказ с нулевой суммой
// не проходит в validated, а отменяется.
func (o *Order) Validate(now time.Time) error {
	if err := o.CheckTransition(OrderStatusValidated); err != nil {
		return err
	}
	switch {
	case len(o.lines) == 0:
		return o.Cancel(CancelReasonNoLines, now)
	case !o.total.IsPositive():
		return o.Cancel(CancelReasonZeroTotal, now)
	}
	if err := o.advance(OrderStatusValidated, now); err != nil {
		return err
	}
	o.record(OrderValidated{orderEvent: newOrderEvent(o.id, now), Total: o.total})
	return nil
}

// StartPayment фиксирует начало оплаты.
func (o *Order) StartPayment(now time.Time) error {
	if err := o.advance(OrderStatusPaymentProcessing, now); err != nil {
		return err
	}
	o.record(OrderPaymentStarted{orderEvent: newOrderEvent(o.id, now), Amount: o.total, Currency: o.currency})
	return nil
}

// MarkAsPaid подтверждает оплату; paymentReference может быть пустым.
func (o *Order) MarkAsPaid(paymentReference string, now time.Time) error {
	if err := o.advance(OrderStatusPaid, now); err != nil {
		return err
	}
	o.record(OrderPaid{
		orderEvent:       newOrderEvent(o.id, now),
		Amount:           o.total,
		Currency:         o.currency,
		PaymentReference: paymentReference,
	})
	return nil
}

// MarkAsShipped передаёт оплаченный заказ в доставку.
func (o *Order) MarkAsShipped(trackingNumber string, now time.Time) error {
	if err := o.advance(OrderStatusShipped, now); err != nil {
		return err
	}
	o.record(OrderShipped{
		orderEvent:     newOrderEvent(o.id, now),
		CustomerID:     o.customerID,
		TrackingNumber: trackingNumber,
	})
	return nil
}

// MarkAsDelivered завершает заказ. Событие не записывается.
func (o *Order) MarkAsDelivered(now time.Time) error {
	return o.advance(OrderStatusDelivered, now)
}

// Cancel отменяет заказ из любого статуса, кроме delivered, cancelled и deleted.
func (o *Order) Cancel(reason string, now time.Time) error {
	switch o.status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusDeleted:
		return &InvalidTransitionError{OrderID: o.id, From: o.status, To: OrderStatusCancelled}
	}
	previous := o.status
	o.status = OrderStatusCancelled
	o.cancellationReason = reason
	o.updatedAt = now
	o.version++
	o.record(OrderCancelled{orderEvent: newOrderEvent(o.id, now), Reason: reason, PreviousStatus: previous})
	return nil
}

// Delete помечает заказ удалённым. После этого переходы невозможны.
func (o *Order) Delete(now time.Time) error {
	if o.status == OrderStatusDeleted {
		return &InvalidTransitionError{OrderID: o.id, From: o.status, To: OrderStatusDeleted}
	}
	previous := o.status
	o.status = OrderStatusDeleted
	o.updatedAt = now
	o.version++
	o.record(OrderDeleted{orderEvent: newOrderEvent(o.id, now), PreviousStatus: previous})
	return nil
}

// OrderLineSnapshot хранит позицию заказа.
type OrderLineSnapshot struct {
	ID        string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// OrderSnapshot — плоское представление заказа для хранилищ и запросов.
type OrderSnapshot struct {
	ID                 string
	CustomerID         string
	OrderDate          time.Time
	Status             OrderStatus
	Currency           string
	Total              decimal.Decimal
	Lines              []OrderLineSnapshot
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
}

// Snapshot возвращает текущее состояние без накопленных событий.
func (o *Order) Snapshot() OrderSnapshot {
	lines := make([]OrderLineSnapshot, 0, len(o.lines))
	for _, l := range o.lines {
		lines = append(lines, OrderLineSnapshot{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.Decimal(),
		})
	}
	return OrderSnapshot{
		ID:                 o.id,
		CustomerID:         o.customerID,
		OrderDate:          o.orderDate,
		Status:             o.status,
		Currency:           o.currency,
		Total:              o.total.Decimal(),
		Lines:              lines,
		CancellationReason: o.cancellationReason,
		CreatedAt:          o.createdAt,
		UpdatedAt:          o.updatedAt,
		Version:            o.version,
	}
}

// RestoreOrder собирает агрегат из снимка. Сумма пересчитывается по позициям,
// сохранённое значение Total не используется.
func RestoreOrder(s OrderSnapshot) (*Order, error) {
	if !s.Status.Valid() {
		return nil, NewValidationError("status", string(s.Status), "unknown order status")
	}
	lines := make([]OrderLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		price, err := NewMoney(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		if l.Quantity <= 0 {
			return nil, NewValidationError("lines.quantity", l.Quantity, "must be greater than zero")
		}
		lines = append(lines, OrderLine{ID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price})
	}
	return &Order{
		id:                 s.ID,
		customerID:         s.CustomerID,
		orderDate:          s.OrderDate,
		status:             s.Status,
		currency:           s.Currency,
		total:              sumLines(lines),
		lines:              lines,
		cancellationReason: s.CancellationReason,
		createdAt:          s.CreatedAt,
		updatedAt:          s.UpdatedAt,
		version:            s.Version,
	}, nil
}

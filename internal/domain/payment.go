package domain

import "time"

// PaymentStatus описывает результат списания у платёжного провайдера.
type PaymentStatus string

const (
	// PaymentStatusCaptured: деньги списаны в пользу мерчанта.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusDeclined: провайдер отклонил платёж.
	PaymentStatusDeclined PaymentStatus = "declined"
)

// ChargeRequest описывает списание по заказу. Повторы одной попытки оплаты несут
// одинаковый IdempotencyKey, и провайдер возвращает прежнюю квитанцию вместо второго списания.
type ChargeRequest struct {
	OrderID        string
	Amount         Money
	Currency       string
	IdempotencyKey string
}

// PaymentReceipt — ответ провайдера на списание по заказу.
type PaymentReceipt struct {
	Reference   string
	OrderID     string
	Amount      Money
	Currency    string
	Status      PaymentStatus
	ProcessedAt time.Time
}

// Shipment — ответ службы доставки о передаче заказа.
type Shipment struct {
	TrackingNumber string
	OrderID        string
	CustomerID     string
	DispatchedAt   time.Time
}

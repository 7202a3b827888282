// Package payment содержит заглушку платёжного провайдера.
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// StubGateway всегда подтверждает списание, если не задана ChargeErr.
// Успешные списания запоминаются по IdempotencyKey, повтор ключа возвращает ту же квитанцию.
type StubGateway struct {
	mu        sync.Mutex
	ChargeErr error
	calls     int
	captures  int
	byKey     map[string]domain.PaymentReceipt
	now       func() time.Time
}

// NewStubGateway возвращает заглушку с успешным сценарием по умолчанию.
func NewStubGateway() *StubGateway {
	return &StubGateway{
		byKey: make(map[string]domain.PaymentReceipt),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Charge возвращает квитанцию со сгенерированным референсом и считает вызовы.
func (g *StubGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.PaymentReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentReceipt{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	if req.IdempotencyKey != "" {
		if receipt, ok := g.byKey[req.IdempotencyKey]; ok {
			return receipt, nil
		}
	}

	receipt := domain.PaymentReceipt{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ProcessedAt: g.now(),
	}
	if g.ChargeErr != nil {
		receipt.Status = domain.PaymentStatusDeclined
		return receipt, g.ChargeErr
	}
	receipt.Reference = "pay_" + uuid.NewString()
	receipt.Status = domain.PaymentStatusCaptured
	g.captures++
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = receipt
	}
	return receipt, nil
}

// Calls возвращает количество вызовов Charge.
func (g *StubGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Captures возвращает количество реальных списаний без повторов по ключу.
func (g *StubGateway) Captures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

var _ domain.PaymentGateway = (*StubGateway)(nil)
